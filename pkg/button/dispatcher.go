// Package button turns the two push buttons into device actions. The
// emergency button toggles the emergency on a triple press and restarts the
// device on a long press; the control button starts a voice command, or
// interrupts the one that is running.
package button

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"ocular/pkg/audio"
	"ocular/pkg/command"
	"ocular/pkg/config"
	"ocular/pkg/device"
	"ocular/pkg/logging"
	"ocular/pkg/model"
)

const edgePoll = 100 * time.Millisecond

// Emergencies is the emergency state machine.
type Emergencies interface {
	Toggle(ctx context.Context, reason string) (bool, error)
	Activate(ctx context.Context, reason string) error
}

// Listener records one spoken phrase, speaking prompt first when non-empty.
type Listener interface {
	Listen(ctx context.Context, prompt string) (string, error)
}

// Analyser describes the scene in front of the camera.
type Analyser interface {
	Analyse(ctx context.Context, custom bool) error
}

// Navigator runs a navigation session.
type Navigator interface {
	Navigate(ctx context.Context) error
}

// Prompter plays a recorded prompt.
type Prompter interface {
	Prompt(ctx context.Context, key audio.Key) error
}

// Options wires the dispatcher. Clock, Interrupt and OnRestart are optional.
type Options struct {
	Provider    config.Provider
	Emergency   Input
	Control     Input
	Emergencies Emergencies
	Listener    Listener
	Analyser    Analyser
	Navigator   Navigator
	Prompts     Prompter
	Restarter   Restarter
	Interrupt   *Interrupt
	Clock       clock.Clock
	OnRestart   func()
}

// Dispatcher owns both buttons.
type Dispatcher struct {
	opts   Options
	cfg    config.ButtonsConfig
	cutoff float64
	clock  clock.Clock
	intr   *Interrupt

	mu        sync.Mutex
	triple    *TripleDetector
	longTimer *clock.Timer
	longFired bool

	controlDown  bool
	controlSince time.Time
	controlFired bool

	presses chan struct{}
	busy    atomic.Bool
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	app := opts.Provider.AppConfig()
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	intr := opts.Interrupt
	if intr == nil {
		intr = NewInterrupt()
	}
	if opts.Restarter == nil {
		opts.Restarter = ExecRestarter{}
	}
	cutoff := app.Commands.Cutoff
	if cutoff <= 0 {
		cutoff = command.DefaultCutoff
	}
	return &Dispatcher{
		opts:    opts,
		cfg:     app.Buttons,
		cutoff:  cutoff,
		clock:   clk,
		intr:    intr,
		triple:  NewTripleDetector(app.Buttons.TripleWindow.Std(), app.Buttons.Cooldown.Std()),
		presses: make(chan struct{}, 1),
	}
}

// Interrupt returns the signal raised by control presses during a command.
func (d *Dispatcher) Interrupt() *Interrupt { return d.intr }

// Busy reports whether a voice command is running.
func (d *Dispatcher) Busy() bool { return d.busy.Load() }

// Run watches both buttons and executes voice commands until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if d.opts.Emergency != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.watchEmergency(ctx)
		}()
	}
	if d.opts.Control != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.watchControl(ctx)
		}()
	}

	d.foreground(ctx)
	wg.Wait()

	d.mu.Lock()
	if d.longTimer != nil {
		d.longTimer.Stop()
		d.longTimer = nil
	}
	d.mu.Unlock()
}

func (d *Dispatcher) watchEmergency(ctx context.Context) {
	last := d.opts.Emergency.Pressed()
	for ctx.Err() == nil {
		if !d.opts.Emergency.WaitForEdge(edgePoll) {
			continue
		}
		// Let contact bounce settle before trusting the level.
		d.clock.Sleep(d.cfg.Debounce.Std())
		level := d.opts.Emergency.Pressed()
		if level == last {
			continue
		}
		last = level
		d.EmergencyEdge(ctx, level, d.clock.Now())
	}
}

// EmergencyEdge handles a debounced level change of the emergency button.
// A press arms the long-press timer; a release disarms it and feeds the
// triple-press detector unless the long press already fired.
func (d *Dispatcher) EmergencyEdge(ctx context.Context, pressed bool, at time.Time) {
	d.mu.Lock()
	if pressed {
		if d.longTimer != nil {
			d.longTimer.Stop()
		}
		d.longFired = false
		d.longTimer = d.clock.AfterFunc(d.cfg.LongPress.Std(), func() { d.longPress(ctx) })
		d.mu.Unlock()
		return
	}

	if d.longTimer != nil {
		d.longTimer.Stop()
		d.longTimer = nil
	}
	if d.longFired {
		d.mu.Unlock()
		return
	}
	res := d.triple.Release(at)
	d.mu.Unlock()

	switch res {
	case TripleMatch:
		slog.Info("Triple press detected")
		active, err := d.opts.Emergencies.Toggle(ctx, "button")
		if err != nil {
			slog.Warn("Emergency toggle failed", "error", err)
			return
		}
		slog.Info("Emergency toggled", "active", active)
	case TripleCooldown:
		slog.Info("Triple press ignored during cooldown")
		d.prompt(ctx, audio.CooldownActive)
	}
}

func (d *Dispatcher) longPress(ctx context.Context) {
	d.mu.Lock()
	d.longFired = true
	d.longTimer = nil
	d.mu.Unlock()

	slog.Warn("Long press detected, restarting")
	logging.Event(model.EventRestart, "Restart requested", "emergency button long press")
	d.prompt(ctx, audio.Restarting)
	if d.opts.OnRestart != nil {
		d.opts.OnRestart()
	}
	if err := d.opts.Restarter.Restart(); err != nil {
		slog.Error("Restart failed", "error", err)
	}
}

func (d *Dispatcher) watchControl(ctx context.Context) {
	ticker := d.clock.Ticker(d.cfg.ControlPoll.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.pollControl(now)
		}
	}
}

// pollControl samples the control level. A press counts once it has been
// held for the debounce period, and only once per hold.
func (d *Dispatcher) pollControl(now time.Time) {
	if !d.opts.Control.Pressed() {
		d.controlDown = false
		d.controlFired = false
		return
	}
	if !d.controlDown {
		d.controlDown = true
		d.controlSince = now
	}
	if d.controlFired || now.Sub(d.controlSince) < d.cfg.ControlDebounce.Std() {
		return
	}
	d.controlFired = true
	d.ControlPress()
}

// ControlPress starts a voice command, or interrupts the running one.
func (d *Dispatcher) ControlPress() {
	if d.busy.Load() {
		slog.Info("Control press: interrupting current mode")
		d.intr.Request()
		return
	}
	select {
	case d.presses <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) foreground(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.presses:
			d.busy.Store(true)
			d.intr.Reset()
			if _, err := d.HandleCommand(ctx); err != nil {
				slog.Warn("Voice command failed", "error", err)
			}
			d.intr.Reset()
			d.busy.Store(false)
		}
	}
}

// HandleCommand listens for one phrase and runs the command it resolves to.
func (d *Dispatcher) HandleCommand(ctx context.Context) (command.Command, error) {
	phrase, err := d.opts.Listener.Listen(ctx, "")
	if err != nil && !errors.Is(err, command.ErrRecognition) {
		d.prompt(ctx, audio.InvalidCommand)
		return command.Invalid, err
	}

	cmd, err := command.Resolve(phrase, d.cutoff)
	slog.Info("Voice command", "heard", phrase, "command", cmd)

	switch cmd {
	case command.Analyse, command.CustomAnalyse:
		if err := d.opts.Analyser.Analyse(ctx, cmd == command.CustomAnalyse); err != nil {
			d.prompt(ctx, audio.InvalidCommand)
			return cmd, err
		}
	case command.Navigate:
		if err := d.opts.Navigator.Navigate(ctx); err != nil {
			return cmd, err
		}
	case command.Emergency:
		err := d.opts.Emergencies.Activate(ctx, "voice")
		if err != nil && !errors.Is(err, device.ErrEmergencyActive) {
			return cmd, err
		}
	default:
		d.prompt(ctx, audio.InvalidCommand)
		return cmd, err
	}
	return cmd, nil
}

func (d *Dispatcher) prompt(ctx context.Context, key audio.Key) {
	if d.opts.Prompts == nil {
		return
	}
	if err := d.opts.Prompts.Prompt(ctx, key); err != nil {
		slog.Warn("Prompt failed", "key", key, "error", err)
	}
}
