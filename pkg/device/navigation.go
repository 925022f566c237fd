package device

// BeginNavigation opens a navigation session. Only one session may exist and
// the device needs a position fix to start one.
func (s *State) BeginNavigation(nav Navigation) error {
	var err error
	if e := s.do(func(rec *Snapshot) bool {
		if rec.Navigation != nil {
			err = ErrNavigationActive
			return false
		}
		if !rec.Position.Valid() {
			err = ErrNoFix
			return false
		}
		if !nav.Origin.Valid() {
			nav.Origin = rec.Position
		}
		rec.Navigation = nav.clone()
		rec.Mode = ModeNavigating
		return true
	}); e != nil {
		return e
	}
	return err
}

// UpdateNavigation applies fn to the active session. It reports false when
// no session is open.
func (s *State) UpdateNavigation(fn func(n *Navigation)) bool {
	var ok bool
	_ = s.do(func(rec *Snapshot) bool {
		if rec.Navigation == nil {
			return false
		}
		fn(rec.Navigation)
		ok = true
		return true
	})
	return ok
}

// Navigation returns a copy of the active session, or nil.
func (s *State) Navigation() *Navigation {
	var n *Navigation
	_ = s.do(func(rec *Snapshot) bool {
		n = rec.Navigation.clone()
		return false
	})
	return n
}

// EndNavigation closes the active session and returns it.
func (s *State) EndNavigation() *Navigation {
	var n *Navigation
	_ = s.do(func(rec *Snapshot) bool {
		if rec.Navigation == nil {
			return false
		}
		n = rec.Navigation
		rec.Navigation = nil
		if rec.Mode == ModeNavigating || rec.Mode == ModeAligning {
			rec.Mode = ModeIdle
		}
		return true
	})
	return n
}
