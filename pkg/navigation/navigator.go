// Package navigation runs a spoken navigation session: it asks for a
// destination, fetches walking steps and walks the user through them.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"ocular/pkg/align"
	"ocular/pkg/audio"
	"ocular/pkg/command"
	"ocular/pkg/config"
	"ocular/pkg/device"
	"ocular/pkg/geo"
	"ocular/pkg/logging"
	"ocular/pkg/model"
	"ocular/pkg/route"
	"ocular/pkg/sensor"
	"ocular/pkg/store"
)

const (
	destinationPrompt = "Where would you like to go?"
	pausedPrompt      = "Navigation paused. Say analyse to look around, or anything else to stop."
	endedText         = "Navigation ended"
)

// Interrupt is the control-button interrupt shared with the dispatcher.
type Interrupt interface {
	align.InterruptSignal
	Reset()
}

// Listener records one spoken phrase, speaking prompt first when non-empty.
type Listener interface {
	Listen(ctx context.Context, prompt string) (string, error)
}

// Speaker speaks English text in the user's language.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Prompter plays a recorded prompt.
type Prompter interface {
	Prompt(ctx context.Context, key audio.Key) error
}

// Analyser runs a scene description.
type Analyser interface {
	Analyse(ctx context.Context, custom bool) error
}

// Options wires a Navigator. Trips, Analyser and Clock are optional.
type Options struct {
	Provider  config.Provider
	State     *device.State
	Position  sensor.PositionSource
	Routes    route.Provider
	Aligner   route.Aligner
	Interrupt Interrupt
	Listener  Listener
	Speaker   Speaker
	Prompts   Prompter
	Analyser  Analyser
	Trips     store.TripStore
	Clock     clock.Clock
}

// Navigator owns navigation sessions.
type Navigator struct {
	opts  Options
	clock clock.Clock
}

// NewNavigator creates a Navigator.
func NewNavigator(opts Options) *Navigator {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Navigator{opts: opts, clock: clk}
}

// Navigate runs one session to completion. The session is closed on every
// exit path.
func (n *Navigator) Navigate(ctx context.Context) error {
	snap := n.opts.State.Snapshot()
	if !snap.HasFix() {
		n.prompt(ctx, audio.GPSUnavailable)
		return device.ErrNoFix
	}

	trip := &model.Trip{
		ID:        uuid.NewString(),
		OriginLat: snap.Position.Lat,
		OriginLon: snap.Position.Lon,
		StartedAt: n.clock.Now(),
	}
	if err := n.opts.State.BeginNavigation(device.Navigation{
		ID:      trip.ID,
		Origin:  snap.Position,
		Started: trip.StartedAt,
	}); err != nil {
		if errors.Is(err, device.ErrNoFix) {
			n.prompt(ctx, audio.GPSUnavailable)
		}
		return err
	}
	defer n.opts.State.EndNavigation()

	outcome, err := n.run(ctx, trip, snap.Position)
	trip.Outcome = string(outcome)
	trip.EndedAt = n.clock.Now()
	n.saveTrip(trip)

	slog.Info("Navigation finished", "destination", trip.Destination, "outcome", outcome,
		"completed", trip.Completed, "steps", trip.Steps)
	logging.Event(model.EventNavigation, "Navigation ended",
		fmt.Sprintf("%s: %s (%d/%d steps)", trip.Destination, outcome, trip.Completed, trip.Steps))
	return err
}

func (n *Navigator) run(ctx context.Context, trip *model.Trip, origin geo.Point) (route.Outcome, error) {
	dest, err := n.opts.Listener.Listen(ctx, destinationPrompt)
	if err != nil {
		return route.OutcomeCancelled, err
	}
	if dest == "" {
		n.prompt(ctx, audio.InvalidCommand)
		return route.OutcomeCancelled, command.ErrRecognition
	}
	trip.Destination = dest
	n.opts.State.UpdateNavigation(func(nav *device.Navigation) { nav.Destination = dest })

	steps, err := n.opts.Routes.Route(ctx, origin, dest)
	if err != nil || len(steps) == 0 {
		slog.Warn("No route", "destination", dest, "error", err)
		n.prompt(ctx, audio.NoRoutes)
		if err == nil {
			err = route.ErrNoRoute
		}
		return route.OutcomeNoRoute, err
	}
	trip.Steps = len(steps)
	n.opts.State.UpdateNavigation(func(nav *device.Navigation) {
		nav.Steps = len(steps)
		nav.Waypoints = waypoints(steps)
	})
	logging.Event(model.EventNavigation, "Navigation started", fmt.Sprintf("%s (%d steps)", dest, len(steps)))

	cfg := n.opts.Provider.AppConfig().Route
	f := route.NewFollower(n.opts.Position, n.opts.Aligner, n.opts.Interrupt, route.Options{
		ArrivalRadius: cfg.ArrivalRadius.Meters(),
		PollInterval:  cfg.PollInterval.Std(),
	})
	f.OnStepStarted = func(i int, step route.Step) {
		n.opts.State.UpdateNavigation(func(nav *device.Navigation) { nav.Step = i })
		if err := n.opts.Speaker.Speak(ctx, step.Instruction); err != nil {
			slog.Warn("Failed to narrate step", "index", i, "error", err)
		}
	}
	f.OnStepCompleted = func(i int, _ route.Step) {
		trip.Completed++
		n.opts.State.UpdateNavigation(func(nav *device.Navigation) { nav.Step = i + 1 })
	}

	from := 0
	for {
		res := f.Follow(ctx, steps, from)
		switch res.Outcome {
		case route.OutcomeArrived:
			n.speak(ctx, endedText)
			return res.Outcome, nil
		case route.OutcomeCancelled:
			return res.Outcome, ctx.Err()
		case route.OutcomeTerminatedByUser:
			if !n.resume(ctx) {
				n.speak(ctx, endedText)
				return res.Outcome, nil
			}
			from = res.StepIndex
		default:
			return res.Outcome, route.ErrNoRoute
		}
	}
}

// resume asks for an embedded command after a control press. Only an
// analysis resumes the route.
func (n *Navigator) resume(ctx context.Context) bool {
	if n.opts.Interrupt != nil {
		n.opts.Interrupt.Reset()
	}
	if n.opts.Analyser == nil {
		return false
	}

	phrase, err := n.opts.Listener.Listen(ctx, pausedPrompt)
	if err != nil {
		return false
	}
	cmd, _ := command.Resolve(phrase, command.DefaultCutoff)
	if cmd != command.Analyse && cmd != command.CustomAnalyse {
		slog.Info("Navigation stopped by user", "heard", phrase)
		return false
	}

	if err := n.opts.Analyser.Analyse(ctx, cmd == command.CustomAnalyse); err != nil {
		slog.Warn("Analysis during navigation failed", "error", err)
		n.prompt(ctx, audio.InvalidCommand)
	}
	if n.opts.Interrupt != nil {
		n.opts.Interrupt.Reset()
	}
	return ctx.Err() == nil
}

func (n *Navigator) saveTrip(trip *model.Trip) {
	if n.opts.Trips == nil {
		return
	}
	// The session context may already be cancelled.
	if err := n.opts.Trips.SaveTrip(context.Background(), trip); err != nil {
		slog.Warn("Failed to save trip", "id", trip.ID, "error", err)
	}
}

func (n *Navigator) speak(ctx context.Context, text string) {
	if err := n.opts.Speaker.Speak(ctx, text); err != nil {
		slog.Warn("Speak failed", "error", err)
	}
}

func (n *Navigator) prompt(ctx context.Context, key audio.Key) {
	if n.opts.Prompts == nil {
		return
	}
	if err := n.opts.Prompts.Prompt(ctx, key); err != nil {
		slog.Warn("Prompt failed", "key", key, "error", err)
	}
}

func waypoints(steps []route.Step) []geo.Point {
	pts := make([]geo.Point, 0, len(steps)+1)
	pts = append(pts, steps[0].Start)
	for _, s := range steps {
		pts = append(pts, s.End)
	}
	return pts
}
