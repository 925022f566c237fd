package device

import (
	"time"
)

// Emergency returns a copy of the emergency record.
func (s *State) Emergency() Emergency {
	var e Emergency
	_ = s.do(func(rec *Snapshot) bool {
		e = rec.Emergency
		return false
	})
	return e
}

// ActivateEmergency moves Idle to Active with the threshold reset to initial.
// It fails with ErrNoFix while the position is the no-fix sentinel and with
// ErrEmergencyActive when already active. The returned record is the new
// state together with the position it was activated at.
func (s *State) ActivateEmergency(reason, incidentID string, initial int, now time.Time) (Emergency, Snapshot, error) {
	var (
		out  Emergency
		snap Snapshot
		err  error
	)
	if e := s.do(func(rec *Snapshot) bool {
		if !rec.Position.Valid() {
			err = ErrNoFix
			return false
		}
		if rec.Emergency.Active {
			err = ErrEmergencyActive
			out = rec.Emergency
			return false
		}
		rec.Emergency = Emergency{
			Active:     true,
			Threshold:  initial,
			IncidentID: incidentID,
			Reason:     reason,
			Since:      now,
		}
		out = rec.Emergency
		snap = rec.clone()
		return true
	}); e != nil {
		return Emergency{}, Snapshot{}, e
	}
	return out, snap, err
}

// DeactivateEmergency resets the record to Idle and returns the record that
// was active. ok is false when nothing was active.
func (s *State) DeactivateEmergency() (prev Emergency, ok bool) {
	_ = s.do(func(rec *Snapshot) bool {
		if !rec.Emergency.Active {
			return false
		}
		prev = rec.Emergency
		ok = true
		rec.Emergency = Emergency{}
		return true
	})
	return prev, ok
}

// GrowThreshold adds increment to the threshold, clamped at max. It does
// nothing unless the emergency is active, no helper is on the way and the
// ceiling has not been reached. reachedMax reports whether this call hit it.
func (s *State) GrowThreshold(increment, max int) (threshold int, grew, reachedMax bool) {
	_ = s.do(func(rec *Snapshot) bool {
		e := &rec.Emergency
		threshold = e.Threshold
		if !e.Active || e.HelperFound || e.Threshold >= max {
			return false
		}
		e.Threshold += increment
		if e.Threshold >= max {
			e.Threshold = max
			reachedMax = true
		}
		threshold = e.Threshold
		grew = true
		return true
	})
	return threshold, grew, reachedMax
}

// MarkEscalated flags the escalation notice as sent. It returns true only
// for the first call per activation.
func (s *State) MarkEscalated() bool {
	var first bool
	_ = s.do(func(rec *Snapshot) bool {
		if !rec.Emergency.Active || rec.Emergency.Escalated {
			return false
		}
		rec.Emergency.Escalated = true
		first = true
		return true
	})
	return first
}

// SetHelper records whether a helper is on the way. changed reports a
// transition of the found flag.
func (s *State) SetHelper(found bool, name string) (changed bool) {
	_ = s.do(func(rec *Snapshot) bool {
		e := &rec.Emergency
		if !e.Active {
			return false
		}
		changed = e.HelperFound != found
		nameChanged := e.Helper != name
		e.HelperFound = found
		if found {
			e.Helper = name
		} else {
			e.Helper = ""
		}
		return changed || nameChanged
	})
	return changed
}

// RestoreEmergency installs a record recovered after a restart, bypassing
// the fix requirement. It does nothing when an emergency is already active.
func (s *State) RestoreEmergency(e Emergency) bool {
	var ok bool
	_ = s.do(func(rec *Snapshot) bool {
		if rec.Emergency.Active || !e.Active {
			return false
		}
		rec.Emergency = e
		ok = true
		return true
	})
	return ok
}
