package align

import (
	"html"
	"regexp"
	"strings"
)

// directionBearings maps every recognized keyword to its bearing.
var directionBearings = map[string]float64{
	"north":      0,
	"north-east": 45,
	"northeast":  45,
	"east":       90,
	"south-east": 135,
	"southeast":  135,
	"south":      180,
	"south-west": 225,
	"southwest":  225,
	"west":       270,
	"north-west": 315,
	"northwest":  315,
}

// Alternatives are ordered longest first: at equal start positions the
// leftmost-first matcher then prefers "north-east" over "north".
var (
	directionRe = regexp.MustCompile(`\b(north-east|north-west|south-east|south-west|northeast|northwest|southeast|southwest|north|south|east|west)\b`)
	tagRe       = regexp.MustCompile(`<[^>]*>`)
)

// ParseBearing finds the first direction keyword in a route instruction.
// Matching is whole-word and case-insensitive; HTML markup is ignored.
func ParseBearing(instruction string) (target float64, keyword string, ok bool) {
	text := strings.ToLower(html.UnescapeString(tagRe.ReplaceAllString(instruction, " ")))
	m := directionRe.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	keyword = m[1]
	return directionBearings[keyword], keyword, true
}
