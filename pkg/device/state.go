// Package device holds the shared device record. A single goroutine owns the
// record; every read and write is a closure delivered to it over a channel,
// so callers only ever see copies.
package device

import (
	"errors"
	"time"

	"ocular/pkg/geo"
)

var (
	// ErrNoFix is returned when an operation needs a valid position.
	ErrNoFix = errors.New("no position fix")
	// ErrEmergencyActive is returned when activating an already active emergency.
	ErrEmergencyActive = errors.New("emergency already active")
	// ErrNavigationActive is returned when a second navigation session is requested.
	ErrNavigationActive = errors.New("navigation session already active")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("device state closed")
)

// Mode is what the foreground loop is currently doing.
type Mode string

const (
	ModeIdle       Mode = "idle"
	ModeListening  Mode = "listening"
	ModeAnalysing  Mode = "analysing"
	ModeNavigating Mode = "navigating"
	ModeAligning   Mode = "aligning"
)

// Emergency is the local copy of the emergency record.
type Emergency struct {
	Active      bool      `json:"active"`
	Threshold   int       `json:"threshold_m"`
	HelperFound bool      `json:"helper_found"`
	Helper      string    `json:"helper,omitempty"`
	Escalated   bool      `json:"escalated"`
	IncidentID  string    `json:"incident_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Since       time.Time `json:"since,omitempty"`
}

// Navigation is the active navigation session.
type Navigation struct {
	ID          string      `json:"id"`
	Destination string      `json:"destination"`
	Origin      geo.Point   `json:"origin"`
	Step        int         `json:"step"`
	Steps       int         `json:"steps"`
	Waypoints   []geo.Point `json:"waypoints,omitempty"`
	Started     time.Time   `json:"started"`
}

func (n *Navigation) clone() *Navigation {
	if n == nil {
		return nil
	}
	c := *n
	c.Waypoints = append([]geo.Point(nil), n.Waypoints...)
	return &c
}

// Snapshot is a point-in-time copy of the device record.
type Snapshot struct {
	Position     geo.Point   `json:"position"`
	PositionAt   time.Time   `json:"position_at"`
	Heading      float64     `json:"heading"`
	HeadingValid bool        `json:"heading_valid"`
	HeadingAt    time.Time   `json:"heading_at"`
	Emergency    Emergency   `json:"emergency"`
	Navigation   *Navigation `json:"navigation,omitempty"`
	Language     string      `json:"language"`
	Mode         Mode        `json:"mode"`
	Version      uint64      `json:"version"`
}

// HasFix reports whether the snapshot carries a usable position.
func (s *Snapshot) HasFix() bool { return s.Position.Valid() }

func (s *Snapshot) clone() Snapshot {
	c := *s
	c.Navigation = s.Navigation.clone()
	return c
}

type op struct {
	fn      func(s *Snapshot) bool // returns true when the record changed
	replied chan struct{}
}

// State owns the device record.
type State struct {
	ops  chan op
	subs chan subRequest
	done chan struct{}
	exit chan struct{}
}

type subRequest struct {
	ch     chan Snapshot
	remove bool
}

// New starts the owner goroutine. Call Close to stop it.
func New(language string) *State {
	s := &State{
		ops:  make(chan op),
		subs: make(chan subRequest),
		done: make(chan struct{}),
		exit: make(chan struct{}),
	}
	go s.run(Snapshot{Language: language, Mode: ModeIdle})
	return s
}

func (s *State) run(rec Snapshot) {
	defer close(s.exit)
	subscribers := make(map[chan Snapshot]struct{})

	for {
		select {
		case <-s.done:
			for ch := range subscribers {
				close(ch)
			}
			return
		case req := <-s.subs:
			if req.remove {
				if _, ok := subscribers[req.ch]; ok {
					delete(subscribers, req.ch)
					close(req.ch)
				}
				continue
			}
			subscribers[req.ch] = struct{}{}
			publish(req.ch, rec.clone())
		case o := <-s.ops:
			if o.fn(&rec) {
				rec.Version++
				for ch := range subscribers {
					publish(ch, rec.clone())
				}
			}
			close(o.replied)
		}
	}
}

// publish delivers the latest snapshot without blocking the owner. A slow
// subscriber only ever sees the newest record.
func publish(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// do runs fn on the owner goroutine and waits for it.
func (s *State) do(fn func(rec *Snapshot) bool) error {
	o := op{fn: fn, replied: make(chan struct{})}
	select {
	case s.ops <- o:
	case <-s.done:
		return ErrClosed
	}
	<-o.replied
	return nil
}

// Close stops the owner goroutine and closes all subscriptions. Afterwards
// calls that return an error report ErrClosed; every other accessor reads
// zero values, and mutators change nothing and report "no change" (false,
// nil or the zero record), the same as a refused transition.
func (s *State) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	<-s.exit
}

// Subscribe returns a channel receiving a snapshot after every change,
// starting with the current record. Call cancel to unsubscribe.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	select {
	case s.subs <- subRequest{ch: ch}:
	case <-s.done:
		close(ch)
		return ch, func() {}
	}
	cancel := func() {
		select {
		case s.subs <- subRequest{ch: ch, remove: true}:
		case <-s.done:
		}
	}
	return ch, cancel
}

// Snapshot returns a copy of the current record.
func (s *State) Snapshot() Snapshot {
	var out Snapshot
	_ = s.do(func(rec *Snapshot) bool {
		out = rec.clone()
		return false
	})
	return out
}

// Position returns the last known position (NoFix if none).
func (s *State) Position() geo.Point {
	var p geo.Point
	_ = s.do(func(rec *Snapshot) bool {
		p = rec.Position
		return false
	})
	return p
}

// SetPosition records a position sample. No-fix samples are stored too so
// that the fix loss is visible to every reader.
func (s *State) SetPosition(p geo.Point, at time.Time) {
	_ = s.do(func(rec *Snapshot) bool {
		if rec.Position == p {
			rec.PositionAt = at
			return false
		}
		rec.Position = p
		rec.PositionAt = at
		return true
	})
}

// SetHeading records a compass sample.
func (s *State) SetHeading(h float64, at time.Time) {
	h = geo.NormalizeHeading(h)
	_ = s.do(func(rec *Snapshot) bool {
		changed := !rec.HeadingValid || rec.Heading != h
		rec.Heading = h
		rec.HeadingValid = true
		rec.HeadingAt = at
		return changed
	})
}

// InvalidateHeading marks the compass as unavailable.
func (s *State) InvalidateHeading() {
	_ = s.do(func(rec *Snapshot) bool {
		changed := rec.HeadingValid
		rec.HeadingValid = false
		return changed
	})
}

// SetLanguage records the user's language.
func (s *State) SetLanguage(lang string) {
	_ = s.do(func(rec *Snapshot) bool {
		if lang == "" || rec.Language == lang {
			return false
		}
		rec.Language = lang
		return true
	})
}

// Language returns the user's language.
func (s *State) Language() string {
	var lang string
	_ = s.do(func(rec *Snapshot) bool {
		lang = rec.Language
		return false
	})
	return lang
}

// SetMode records the foreground activity and returns the previous one.
func (s *State) SetMode(m Mode) Mode {
	var prev Mode
	_ = s.do(func(rec *Snapshot) bool {
		prev = rec.Mode
		rec.Mode = m
		return prev != m
	})
	return prev
}
