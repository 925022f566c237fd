package emergency

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"ocular/pkg/audio"
	"ocular/pkg/config"
	"ocular/pkg/device"
	"ocular/pkg/geo"
	"ocular/pkg/sensor"
)

// ReasonNoMotion is the activation reason used by the watchdog.
const ReasonNoMotion = "no-motion"

// Activator starts an emergency.
type Activator interface {
	Activate(ctx context.Context, reason string) error
	Active() bool
}

// Watchdog raises an emergency when the heading has not changed for the
// configured window. After firing it stays quiet until the emergency ends,
// then re-arms with a fresh reference.
type Watchdog struct {
	prov      config.Provider
	compass   sensor.Compass
	state     *device.State
	activator Activator
	prompts   Prompter
	clock     clock.Clock

	mu        sync.Mutex
	reference float64
	since     time.Time
	armed     bool
	fired     bool
	spent     bool // fired with rearm disabled
}

// NewWatchdog creates a Watchdog. prompts and clk may be nil.
func NewWatchdog(prov config.Provider, compass sensor.Compass, state *device.State, activator Activator, prompts Prompter, clk clock.Clock) *Watchdog {
	if clk == nil {
		clk = clock.New()
	}
	return &Watchdog{
		prov:      prov,
		compass:   compass,
		state:     state,
		activator: activator,
		prompts:   prompts,
		clock:     clk,
	}
}

// Tick takes one heading sample and fires the activation once the heading
// has been still for the whole window.
func (w *Watchdog) Tick(ctx context.Context) error {
	if !w.prov.NoMotionEnabled(ctx) {
		w.reset()
		return nil
	}
	cfg := w.prov.AppConfig().NoMotion

	if w.quiet(cfg.Rearm) {
		return nil
	}

	heading, err := w.compass.Heading(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		slog.Debug("No-motion watchdog: compass read failed", "error", err)
		return nil
	}
	now := w.clock.Now()

	w.mu.Lock()
	if !w.armed || geo.HeadingChange(w.reference, heading) > cfg.ChangeThreshold {
		w.reference = heading
		w.since = now
		w.armed = true
		w.mu.Unlock()
		return nil
	}
	still := now.Sub(w.since)
	w.mu.Unlock()

	if still < cfg.Window.Std() {
		return nil
	}

	if !w.state.Position().Valid() {
		slog.Warn("No-motion window elapsed without a position fix", "still", still)
		w.reset()
		if w.prompts != nil {
			if err := w.prompts.Prompt(ctx, audio.GPSUnavailable); err != nil {
				slog.Warn("Prompt failed", "error", err)
			}
		}
		return nil
	}

	slog.Warn("No motion detected, raising emergency", "still", still, "heading", heading)
	err = w.activator.Activate(ctx, ReasonNoMotion)

	w.mu.Lock()
	w.armed = false
	if err == nil || errors.Is(err, device.ErrEmergencyActive) {
		w.fired = true
		w.spent = !cfg.Rearm
	}
	w.mu.Unlock()

	if err != nil && !errors.Is(err, device.ErrEmergencyActive) {
		return err
	}
	return nil
}

// quiet reports whether the watchdog is waiting for the emergency it raised
// to end. It re-arms once that happens.
func (w *Watchdog) quiet(rearm bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.spent && !rearm {
		return true
	}
	if !w.fired {
		return false
	}
	if w.activator.Active() {
		return true
	}
	w.fired = false
	w.spent = false
	w.armed = false
	slog.Info("No-motion watchdog re-armed")
	return false
}

func (w *Watchdog) reset() {
	w.mu.Lock()
	w.armed = false
	w.mu.Unlock()
}

// Still returns how long the heading has been unchanged.
func (w *Watchdog) Still() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return 0
	}
	return w.clock.Now().Sub(w.since)
}
