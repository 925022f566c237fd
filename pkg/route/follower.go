// Package route walks the user through turn-by-turn steps, completing each
// step when the position enters the geofence around its end point.
package route

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ocular/pkg/align"
	"ocular/pkg/geo"
	"ocular/pkg/sensor"
)

// ErrNoRoute is returned when no route could be found.
var ErrNoRoute = errors.New("no route")

// Step is one turn-by-turn instruction.
type Step struct {
	Instruction string    `json:"instruction"`
	Start       geo.Point `json:"start"`
	End         geo.Point `json:"end"`
}

// Provider fetches walking steps from origin to a spoken destination.
type Provider interface {
	Route(ctx context.Context, origin geo.Point, destination string) ([]Step, error)
}

// Aligner turns the user toward an instruction's direction.
type Aligner interface {
	Align(ctx context.Context, instruction string) (align.Result, error)
}

// Outcome is how a Follow call ended.
type Outcome string

const (
	OutcomeArrived          Outcome = "arrived"
	OutcomeTerminatedByUser Outcome = "terminated_by_user"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeNoRoute          Outcome = "no_route"
)

// Result reports the outcome and the step to resume from.
type Result struct {
	Outcome   Outcome
	StepIndex int
	Completed int
}

// Options tune the geofence.
type Options struct {
	ArrivalRadius float64 // meters
	PollInterval  time.Duration
}

// Follower runs the step state machine. The callbacks are optional and
// run on the calling goroutine.
type Follower struct {
	pos       sensor.PositionSource
	aligner   Aligner
	interrupt align.InterruptSignal
	opts      Options

	OnStepStarted   func(index int, step Step)
	OnStepCompleted func(index int, step Step)
}

// NewFollower creates a follower.
func NewFollower(pos sensor.PositionSource, aligner Aligner, intr align.InterruptSignal, opts Options) *Follower {
	if opts.ArrivalRadius <= 0 {
		opts.ArrivalRadius = 8.5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Follower{pos: pos, aligner: aligner, interrupt: intr, opts: opts}
}

// Follow walks steps starting at index from. Only the first step of the
// route triggers alignment, so resuming mid-route does not re-align.
func (f *Follower) Follow(ctx context.Context, steps []Step, from int) Result {
	if len(steps) == 0 {
		return Result{Outcome: OutcomeNoRoute}
	}
	if from < 0 {
		from = 0
	}

	var wake <-chan struct{}
	if n, ok := f.interrupt.(interface{ Done() <-chan struct{} }); ok {
		wake = n.Done()
	}

	res := Result{StepIndex: from}
	for i := from; i < len(steps); i++ {
		step := steps[i]
		res.StepIndex = i

		if i == 0 && f.aligner != nil {
			ar, err := f.aligner.Align(ctx, step.Instruction)
			switch {
			case ctx.Err() != nil:
				res.Outcome = OutcomeCancelled
				return res
			case ar.Outcome == align.OutcomeCancelled:
				res.Outcome = OutcomeTerminatedByUser
				return res
			case err != nil:
				// Missing compass must not block walking the route.
				slog.Warn("Alignment failed, continuing without", "error", err)
			}
		}

		if f.OnStepStarted != nil {
			f.OnStepStarted(i, step)
		}

		if out, done := f.awaitArrival(ctx, step, wake); !done {
			res.Outcome = out
			return res
		}

		res.Completed++
		slog.Info("Step completed", "index", i, "of", len(steps))
		if f.OnStepCompleted != nil {
			f.OnStepCompleted(i, step)
		}
	}

	res.StepIndex = len(steps)
	res.Outcome = OutcomeArrived
	return res
}

// awaitArrival polls until the step end is reached. It returns false with
// the terminating outcome when interrupted or cancelled.
func (f *Follower) awaitArrival(ctx context.Context, step Step, wake <-chan struct{}) (Outcome, bool) {
	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return OutcomeCancelled, false
		}
		if f.interrupt != nil && f.interrupt.Requested() {
			slog.Info("Navigation terminated by user")
			return OutcomeTerminatedByUser, false
		}

		p, err := f.pos.Position(ctx)
		switch {
		case err != nil:
			slog.Debug("Position read failed", "error", err)
		case !p.Valid():
			// No fix: never feed the sentinel into distance math.
		default:
			d := geo.Distance(p, step.End)
			slog.Debug("Distance to step end", "meters", d)
			if d < f.opts.ArrivalRadius {
				return "", true
			}
		}

		select {
		case <-ctx.Done():
		case <-wake:
		case <-ticker.C:
		}
	}
}
