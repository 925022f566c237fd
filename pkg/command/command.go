// Package command maps a recognised phrase onto one of the device's voice
// commands.
package command

import (
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ErrRecognition is returned when nothing was heard.
var ErrRecognition = errors.New("speech not recognised")

// Command is a voice command.
type Command string

const (
	Analyse       Command = "analyse"
	CustomAnalyse Command = "custom analyse"
	Navigate      Command = "navigate"
	Emergency     Command = "emergency"
	Invalid       Command = "invalid"
)

// All lists the commands Resolve can return, excluding Invalid.
var All = []Command{Analyse, CustomAnalyse, Navigate, Emergency}

// byLength is All ordered longest first so that containment prefers
// "custom analyse" over "analyse".
var byLength = func() []Command {
	out := append([]Command(nil), All...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}()

// aliases are single words that select a command wherever they occur in
// the phrase. They take priority over every other containment match.
var aliases = map[string]Command{
	"custom": CustomAnalyse,
}

// DefaultCutoff is the minimum similarity for a fuzzy match.
const DefaultCutoff = 0.4

// Resolve returns the command the phrase most likely means. Matching tries,
// in order: exact, an alias word, containment, then the closest command by
// edit distance whose similarity reaches cutoff. Empty input yields ErrRecognition.
func Resolve(phrase string, cutoff float64) (Command, error) {
	in := strings.ToLower(strings.TrimSpace(phrase))
	if in == "" {
		return Invalid, ErrRecognition
	}

	for _, c := range All {
		if in == string(c) {
			return c, nil
		}
	}
	for _, w := range strings.Fields(in) {
		if c, ok := aliases[w]; ok {
			return c, nil
		}
	}
	for _, c := range byLength {
		if strings.Contains(in, string(c)) {
			return c, nil
		}
	}

	best, bestScore := Invalid, -1.0
	for _, c := range All {
		score := Similarity(in, string(c))
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore >= cutoff {
		return best, nil
	}
	return Invalid, nil
}

// Similarity is 1 - d/max(len(a), len(b)) where d is the Levenshtein
// distance, counted in runes.
func Similarity(a, b string) float64 {
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	return 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(n)
}
