package geo

import (
	"math"
)

// Heading converts the signed X/Y axes of a magnetometer into a compass
// heading in degrees clockwise from magnetic north, in [0,360).
func Heading(x, y int16) float64 {
	return NormalizeHeading(math.Atan2(float64(y), float64(x)) * (180.0 / math.Pi))
}

// NormalizeHeading folds any angle into [0,360).
func NormalizeHeading(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// -0.0 and rounding of values just below 0 can yield 360.
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// AngularError is the misalignment between a target bearing and a heading.
// The circular form is min(|d|, 360-|d|); the raw form is |target-heading|.
func AngularError(target, heading float64, circular bool) float64 {
	d := math.Abs(target - heading)
	if circular && d > 180 {
		d = 360 - d
	}
	return d
}

// HeadingChange is the smallest absolute rotation between two headings.
func HeadingChange(a, b float64) float64 {
	return math.Abs(NormalizeAngle(b - a))
}

// Direction is one of the eight compass sectors.
type Direction int

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var directionNames = [...]string{
	"North", "North-East", "East", "South-East",
	"South", "South-West", "West", "North-West",
}

func (d Direction) String() string {
	if d < North || d > NorthWest {
		return "Unknown"
	}
	return directionNames[d]
}

// Bearing returns the sector's center heading.
func (d Direction) Bearing() float64 {
	return float64(d) * 45
}

// CompassDirection quantizes a heading into a 45 degree sector. Sector
// boundaries sit at 22.5+45k and belong to the sector above them.
func CompassDirection(heading float64) Direction {
	h := NormalizeHeading(heading)
	return Direction(int(math.Floor((h+22.5)/45)) % 8)
}
