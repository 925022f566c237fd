// Package emergency runs the emergency state machine shared with the
// companion app and the immobility watchdog that can trigger it.
package emergency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"ocular/pkg/audio"
	"ocular/pkg/config"
	"ocular/pkg/device"
	"ocular/pkg/geo"
	"ocular/pkg/logging"
	"ocular/pkg/model"
	"ocular/pkg/notify"
	"ocular/pkg/remote"
	"ocular/pkg/store"
)

// ErrNotActive is returned by Deactivate when no emergency is running.
var ErrNotActive = errors.New("no active emergency")

// Prompter plays a recorded prompt.
type Prompter interface {
	Prompt(ctx context.Context, key audio.Key) error
}

// Speaker speaks free text in the user's language.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Options wires the monitor's collaborators. Notifier, Incidents, Prompts,
// Speaker and Clock are optional.
type Options struct {
	Provider  config.Provider
	State     *device.State
	Remote    remote.Store
	Notifier  notify.Notifier
	Incidents store.IncidentStore
	Prompts   Prompter
	Speaker   Speaker
	Clock     clock.Clock
}

// Monitor owns the emergency transitions. The record itself lives in
// device.State; the monitor only keeps its timers.
type Monitor struct {
	prov      config.Provider
	cfg       config.EmergencyConfig
	state     *device.State
	remote    remote.Store
	notifier  notify.Notifier
	incidents store.IncidentStore
	prompts   Prompter
	speaker   Speaker
	clock     clock.Clock

	// tmu orders transitions against every remote emergency write, so a
	// push of an older record never lands after a newer one.
	tmu sync.Mutex
	gen uint64 // bumped by each transition; guarded by tmu

	mu             sync.Mutex
	lastIncrement  time.Time
	lastHelperPoll time.Time
	unsynced       bool // the remote flag does not match the local record yet
	remoteWaiting  bool // a remote activation request is waiting for a fix
	origin         geo.Point
}

// NewMonitor creates a Monitor.
func NewMonitor(opts Options) *Monitor {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{
		prov:      opts.Provider,
		cfg:       opts.Provider.AppConfig().Emergency,
		state:     opts.State,
		remote:    opts.Remote,
		notifier:  opts.Notifier,
		incidents: opts.Incidents,
		prompts:   opts.Prompts,
		speaker:   opts.Speaker,
		clock:     clk,
	}
}

// Activate moves Idle to Active at the current position.
func (m *Monitor) Activate(ctx context.Context, reason string) error {
	m.tmu.Lock()
	defer m.tmu.Unlock()
	return m.activate(ctx, reason)
}

// activate requires tmu.
func (m *Monitor) activate(ctx context.Context, reason string) error {
	now := m.clock.Now()
	id := uuid.NewString()

	e, snap, err := m.state.ActivateEmergency(reason, id, m.cfg.InitialThreshold, now)
	if errors.Is(err, device.ErrNoFix) {
		slog.Warn("Emergency activation refused without a position fix", "reason", reason)
		m.prompt(ctx, audio.GPSUnavailable)
		return fmt.Errorf("activate emergency: %w", err)
	}
	if err != nil {
		return fmt.Errorf("activate emergency: %w", err)
	}
	m.gen++

	m.mu.Lock()
	m.lastIncrement = now
	m.lastHelperPoll = time.Time{}
	m.unsynced = true
	m.remoteWaiting = false
	m.origin = snap.Position
	m.mu.Unlock()

	if m.incidents != nil {
		inc := &model.Incident{
			ID:        id,
			Reason:    reason,
			Lat:       snap.Position.Lat,
			Lon:       snap.Position.Lon,
			StartedAt: now,
		}
		if err := m.incidents.SaveIncident(ctx, inc); err != nil {
			slog.Error("Failed to record incident", "id", id, "error", err)
		}
	}

	logging.Event(model.EventEmergencyOn, "Emergency activated",
		fmt.Sprintf("reason=%s incident=%s at %.6f,%.6f", reason, id, snap.Position.Lat, snap.Position.Lon))
	m.prompt(ctx, audio.EmergencyOn)

	m.sync(ctx, e, snap.Position)
	return nil
}

// Deactivate returns to Idle, clears the remote flag and tells every
// contact that help is no longer needed.
func (m *Monitor) Deactivate(ctx context.Context, reason string) error {
	m.tmu.Lock()
	defer m.tmu.Unlock()
	return m.deactivate(ctx, reason, true)
}

// Toggle flips the emergency state. It reports the state after the call.
func (m *Monitor) Toggle(ctx context.Context, reason string) (bool, error) {
	m.tmu.Lock()
	defer m.tmu.Unlock()
	if m.state.Emergency().Active {
		return false, m.deactivate(ctx, reason, true)
	}
	if err := m.activate(ctx, reason); err != nil {
		return false, err
	}
	return true, nil
}

// Active reports whether an emergency is running.
func (m *Monitor) Active() bool {
	return m.state.Emergency().Active
}

// deactivate requires tmu.
func (m *Monitor) deactivate(ctx context.Context, reason string, announce bool) error {
	prev, ok := m.state.DeactivateEmergency()
	if !ok {
		return ErrNotActive
	}
	m.gen++
	now := m.clock.Now()

	m.mu.Lock()
	m.lastIncrement = time.Time{}
	m.unsynced = announce
	m.origin = geo.NoFix
	m.mu.Unlock()

	logging.Event(model.EventEmergencyOff, "Emergency deactivated",
		fmt.Sprintf("reason=%s incident=%s threshold=%dm", reason, prev.IncidentID, prev.Threshold))
	m.prompt(ctx, audio.EmergencyOff)

	if announce {
		m.sync(ctx, device.Emergency{}, geo.NoFix)
		m.broadcast(ctx, func(owner string, c model.Contact) string {
			return StandDownMessage(c.Name, owner)
		})
	}

	m.updateIncident(ctx, prev.IncidentID, func(inc *model.Incident) {
		inc.EndedAt = now
		inc.EndReason = reason
		inc.Escalated = prev.Escalated
		if prev.Threshold > inc.MaxThreshold {
			inc.MaxThreshold = prev.Threshold
		}
	})
	return nil
}

// Poll runs one monitor cycle: reconcile with the remote flag, track the
// helper and grow the search radius. Failures are logged and retried on the
// next call.
func (m *Monitor) Poll(ctx context.Context) error {
	now := m.clock.Now()

	m.tmu.Lock()
	gen := m.gen
	local := m.state.Emergency()
	m.mu.Lock()
	unsynced := m.unsynced
	helperDue := local.Active && now.Sub(m.lastHelperPoll) >= m.cfg.HelperPollInterval.Std()
	if helperDue {
		m.lastHelperPoll = now
	}
	m.mu.Unlock()
	if unsynced {
		m.sync(ctx, local, m.state.Position())
	}
	m.tmu.Unlock()

	names := []string{remote.FieldEmergency}
	if helperDue {
		names = append(names, remote.FieldHelpComing, remote.FieldHelper)
	}
	fields, err := remote.Fields(ctx, m.remote, names...)
	if err != nil {
		slog.Warn("Emergency poll: remote read failed", "error", err)
		fields = nil
	}

	m.tmu.Lock()
	defer m.tmu.Unlock()
	if m.gen != gen {
		// A transition ran during the read; the fields predate it.
		return nil
	}

	if fields != nil && !unsynced {
		if on, ok := remote.Bool(fields[remote.FieldEmergency]); ok {
			switch {
			case on && !local.Active:
				m.activateFromRemote(ctx)
				return nil
			case !on && local.Active:
				slog.Info("Emergency cleared remotely", "incident", local.IncidentID)
				return m.deactivate(ctx, "remote", false)
			case !on:
				m.mu.Lock()
				m.remoteWaiting = false
				m.mu.Unlock()
			}
		}
	}

	if !local.Active {
		return nil
	}

	if helperDue && fields != nil {
		m.trackHelper(ctx, fields, now)
	}

	m.grow(ctx, now)

	if e := m.state.Emergency(); e.Active && !e.Escalated && !e.HelperFound && e.Threshold >= m.cfg.MaxThreshold {
		m.escalate(ctx)
	}
	return nil
}

// Restore resumes an emergency that was running when the device restarted.
// The remote flag decides: true keeps the incident going, false closes it.
func (m *Monitor) Restore(ctx context.Context) error {
	if m.incidents == nil {
		return nil
	}
	m.tmu.Lock()
	defer m.tmu.Unlock()

	inc, err := m.incidents.OpenIncident(ctx)
	if err != nil {
		return fmt.Errorf("restore emergency: %w", err)
	}
	if inc == nil {
		return nil
	}

	fields, err := remote.Fields(ctx, m.remote, remote.FieldEmergency, remote.FieldThreshold)
	if err != nil {
		slog.Warn("Restoring emergency without remote confirmation", "incident", inc.ID, "error", err)
	}
	if on, ok := remote.Bool(fields[remote.FieldEmergency]); ok && !on {
		slog.Info("Closing incident cleared while offline", "incident", inc.ID)
		inc.EndedAt = m.clock.Now()
		inc.EndReason = "remote"
		return m.incidents.SaveIncident(ctx, inc)
	}

	threshold := inc.MaxThreshold
	if n, ok := remote.Int(fields[remote.FieldThreshold]); ok && int(n) > threshold {
		threshold = int(n)
	}
	if threshold < m.cfg.InitialThreshold {
		threshold = m.cfg.InitialThreshold
	}
	if threshold > m.cfg.MaxThreshold {
		threshold = m.cfg.MaxThreshold
	}

	restored := m.state.RestoreEmergency(device.Emergency{
		Active:     true,
		Threshold:  threshold,
		Escalated:  inc.Escalated,
		IncidentID: inc.ID,
		Reason:     inc.Reason,
		Since:      inc.StartedAt,
	})
	if !restored {
		return nil
	}
	m.gen++

	m.mu.Lock()
	m.lastIncrement = m.clock.Now()
	m.origin = geo.Point{Lat: inc.Lat, Lon: inc.Lon}
	m.mu.Unlock()

	slog.Info("Emergency restored", "incident", inc.ID, "threshold", threshold)
	return nil
}

func (m *Monitor) activateFromRemote(ctx context.Context) {
	if !m.state.Position().Valid() {
		m.mu.Lock()
		first := !m.remoteWaiting
		m.remoteWaiting = true
		m.mu.Unlock()
		if first {
			slog.Warn("Remote emergency request waiting for a position fix")
			m.prompt(ctx, audio.GPSUnavailable)
		}
		return
	}
	if err := m.activate(ctx, "remote"); err != nil && !errors.Is(err, device.ErrEmergencyActive) {
		slog.Error("Remote emergency activation failed", "error", err)
	}
}

func (m *Monitor) trackHelper(ctx context.Context, fields map[string]any, now time.Time) {
	coming, _ := remote.Bool(fields[remote.FieldHelpComing])
	name, _ := remote.String(fields[remote.FieldHelper])
	found := coming && name != ""

	if !m.state.SetHelper(found, name) {
		return
	}
	e := m.state.Emergency()

	if found {
		logging.Event(model.EventHelper, "Helper on the way", name)
		m.updateIncident(ctx, e.IncidentID, func(inc *model.Incident) { inc.Helper = name })
		m.speak(ctx, fmt.Sprintf("Please wait while %s is coming to assist you", name))
		return
	}

	slog.Info("Helper no longer on the way, resuming search growth")
	m.mu.Lock()
	m.lastIncrement = now
	m.mu.Unlock()
}

// grow adds one increment per full interval since the last one. The
// schedule is anchored at activation, so late polls catch up instead of
// shifting every later step.
func (m *Monitor) grow(ctx context.Context, now time.Time) {
	every := m.cfg.IncrementInterval.Std()
	m.mu.Lock()
	due := 0
	for every > 0 && !m.lastIncrement.IsZero() && now.Sub(m.lastIncrement) >= every {
		m.lastIncrement = m.lastIncrement.Add(every)
		due++
	}
	m.mu.Unlock()

	var (
		threshold  int
		grew       bool
		reachedMax bool
	)
	for ; due > 0; due-- {
		t, ok, top := m.state.GrowThreshold(m.cfg.Increment, m.cfg.MaxThreshold)
		if !ok {
			break
		}
		threshold, grew, reachedMax = t, true, top
	}
	if !grew {
		return
	}
	slog.Debug("Search radius grown", "threshold_m", threshold, "max", reachedMax)

	if err := m.remote.Set(ctx, map[string]any{remote.FieldThreshold: int64(threshold)}); err != nil {
		slog.Warn("Failed to publish emergency threshold", "threshold", threshold, "error", err)
		m.mu.Lock()
		m.unsynced = true
		m.mu.Unlock()
	}
	m.updateIncident(ctx, m.state.Emergency().IncidentID, func(inc *model.Incident) {
		if threshold > inc.MaxThreshold {
			inc.MaxThreshold = threshold
		}
	})
}

func (m *Monitor) escalate(ctx context.Context) {
	contacts, owner, err := m.recipients(ctx)
	if err != nil {
		slog.Warn("Escalation postponed: contacts unavailable", "error", err)
		return
	}
	if !m.state.MarkEscalated() {
		return
	}

	pos := m.state.Position()
	if !pos.Valid() {
		m.mu.Lock()
		pos = m.origin
		m.mu.Unlock()
	}
	link := fmt.Sprintf(m.cfg.MapsLinkFormat, pos.Lat, pos.Lon)

	e := m.state.Emergency()
	logging.Event(model.EventEscalated, "Emergency escalated",
		fmt.Sprintf("incident=%s threshold=%dm contacts=%d", e.IncidentID, e.Threshold, len(contacts)))
	m.updateIncident(ctx, e.IncidentID, func(inc *model.Incident) { inc.Escalated = true })

	if m.notifier == nil {
		return
	}
	if err := notify.SendAll(ctx, m.notifier, contacts, func(c model.Contact) string {
		return EscalationMessage(c.Name, owner, link)
	}); err != nil {
		slog.Error("Escalation message not delivered to every contact", "error", err)
	}
}

func (m *Monitor) broadcast(ctx context.Context, render func(owner string, c model.Contact) string) {
	if m.notifier == nil {
		return
	}
	contacts, owner, err := m.recipients(ctx)
	if err != nil {
		slog.Error("Cannot notify contacts", "error", err)
		return
	}
	if err := notify.SendAll(ctx, m.notifier, contacts, func(c model.Contact) string {
		return render(owner, c)
	}); err != nil {
		slog.Error("Message not delivered to every contact", "error", err)
	}
}

// recipients reads the contact list and the owner's display name.
func (m *Monitor) recipients(ctx context.Context) ([]model.Contact, string, error) {
	fields, err := remote.Fields(ctx, m.remote, remote.FieldContacts, remote.FieldOwnerName)
	if err != nil {
		return nil, "", err
	}
	owner, _ := remote.String(fields[remote.FieldOwnerName])
	if owner != "" {
		if err := m.prov.SetOwnerName(ctx, owner); err != nil {
			slog.Debug("Failed to persist owner name", "error", err)
		}
	} else {
		owner = m.prov.OwnerName(ctx)
	}
	if owner == "" {
		owner = "Your contact"
	}
	return remote.Contacts(fields[remote.FieldContacts]), owner, nil
}

// sync pushes the local emergency record to the remote document.
func (m *Monitor) sync(ctx context.Context, e device.Emergency, pos geo.Point) {
	fields := map[string]any{
		remote.FieldEmergency: e.Active,
		remote.FieldThreshold: int64(e.Threshold),
	}
	if e.Active {
		fields[remote.FieldIncidentID] = e.IncidentID
		fields[remote.FieldEmergencyStarted] = e.Since.UTC().Format(time.RFC3339)
		if pos.Valid() {
			fields[remote.FieldLatitude] = pos.Lat
			fields[remote.FieldLongitude] = pos.Lon
		}
	}

	err := m.remote.Set(ctx, fields)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		slog.Warn("Failed to publish emergency state", "active", e.Active, "error", err)
		m.unsynced = true
		return
	}
	m.unsynced = false
}

func (m *Monitor) updateIncident(ctx context.Context, id string, fn func(inc *model.Incident)) {
	if m.incidents == nil || id == "" {
		return
	}
	inc, err := m.incidents.GetIncident(ctx, id)
	if err != nil || inc == nil {
		slog.Warn("Incident not found", "id", id, "error", err)
		return
	}
	fn(inc)
	if err := m.incidents.SaveIncident(ctx, inc); err != nil {
		slog.Error("Failed to update incident", "id", id, "error", err)
	}
}

func (m *Monitor) prompt(ctx context.Context, key audio.Key) {
	if m.prompts == nil {
		return
	}
	if err := m.prompts.Prompt(ctx, key); err != nil {
		slog.Warn("Prompt failed", "key", key, "error", err)
	}
}

func (m *Monitor) speak(ctx context.Context, text string) {
	if m.speaker == nil {
		slog.Info("Announcement", "text", text)
		return
	}
	if err := m.speaker.Speak(ctx, text); err != nil {
		slog.Warn("Announcement failed", "error", err)
	}
}

// EscalationMessage is sent once when the search radius reaches its ceiling.
func EscalationMessage(contact, owner, link string) string {
	return fmt.Sprintf("\nHi %s,\n%s requires your immediate assistance, as no support is available in their vicinity (Emergency!)\nLocation :  %s",
		contact, owner, link)
}

// StandDownMessage is sent when the emergency ends.
func StandDownMessage(contact, owner string) string {
	return fmt.Sprintf("\nHi %s,\n%s no longer needs assistance", contact, owner)
}
