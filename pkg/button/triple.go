package button

import "time"

// TripleResult is what a release meant to the triple-press detector.
type TripleResult int

const (
	TripleNone TripleResult = iota
	TripleMatch
	TripleCooldown
)

func (r TripleResult) String() string {
	switch r {
	case TripleMatch:
		return "match"
	case TripleCooldown:
		return "cooldown"
	default:
		return "none"
	}
}

// TripleDetector recognises three releases inside a sliding window. A match
// is honoured at most once per cooldown.
type TripleDetector struct {
	window   time.Duration
	cooldown time.Duration

	presses       []time.Time
	cooldownUntil time.Time
}

// NewTripleDetector creates a detector.
func NewTripleDetector(window, cooldown time.Duration) *TripleDetector {
	return &TripleDetector{window: window, cooldown: cooldown}
}

// Release records a release at t. Three releases in the window clear it and
// report a match, or a cooldown when the previous honoured match was too
// recent. Presses ignored during the cooldown do not extend it.
func (d *TripleDetector) Release(t time.Time) TripleResult {
	kept := d.presses[:0]
	for _, p := range d.presses {
		if t.Sub(p) < d.window {
			kept = append(kept, p)
		}
	}
	d.presses = append(kept, t)

	if len(d.presses) < 3 {
		return TripleNone
	}
	d.presses = d.presses[:0]

	if t.Before(d.cooldownUntil) {
		return TripleCooldown
	}
	d.cooldownUntil = t.Add(d.cooldown)
	return TripleMatch
}
