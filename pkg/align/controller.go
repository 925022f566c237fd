// Package align turns compass readings into haptic feedback until the user
// faces a target bearing.
package align

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"ocular/pkg/audio"
	"ocular/pkg/config"
	"ocular/pkg/device"
	"ocular/pkg/geo"
	"ocular/pkg/logging"
	"ocular/pkg/sensor"
)

// ErrSensorUnavailable is returned when the compass stops answering.
var ErrSensorUnavailable = errors.New("compass unavailable")

// Outcome is how an alignment ended.
type Outcome string

const (
	OutcomeAligned     Outcome = "aligned"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeNoDirection Outcome = "no_direction"
	OutcomeNoSignal    Outcome = "no_signal"
)

// Feedback is the haptic channel. Intensity 0 is off.
type Feedback interface {
	Vibrate(intensity int)
	Stop()
}

// InterruptSignal reports a pending user interrupt.
type InterruptSignal interface {
	Requested() bool
}

// Cues plays the start and exit prompts.
type Cues interface {
	Prompt(ctx context.Context, key audio.Key) error
}

// Result describes a finished alignment.
type Result struct {
	Outcome Outcome
	Keyword string
	Target  float64
	Heading float64
	Error   float64
	Samples int
}

// Controller runs the alignment loop.
type Controller struct {
	prov      config.Provider
	compass   sensor.Compass
	feedback  Feedback
	interrupt InterruptSignal
	cues      Cues
	state     *device.State
}

// NewController creates a controller. cues and state may be nil.
func NewController(prov config.Provider, compass sensor.Compass, fb Feedback, intr InterruptSignal, cues Cues, state *device.State) *Controller {
	return &Controller{
		prov:      prov,
		compass:   compass,
		feedback:  fb,
		interrupt: intr,
		cues:      cues,
		state:     state,
	}
}

// Intensity maps an angular error to a feedback level in [0,max].
func Intensity(errDeg, max float64) int {
	v := int(errDeg / 180 * max)
	if v < 0 {
		return 0
	}
	if m := int(max); v > m {
		return m
	}
	return v
}

// Align steers the user toward the direction named in instruction. A user
// interrupt yields OutcomeCancelled with a nil error; context cancellation
// yields OutcomeCancelled with ctx.Err().
func (c *Controller) Align(ctx context.Context, instruction string) (Result, error) {
	target, keyword, ok := ParseBearing(instruction)
	if !ok {
		slog.Debug("No direction in instruction", "instruction", instruction)
		return Result{Outcome: OutcomeNoDirection}, nil
	}
	res := Result{Keyword: keyword, Target: target}

	cfg := c.prov.AppConfig().Align
	tolerance := c.prov.AlignTolerance(ctx)
	interval := time.Duration(cfg.SampleInterval)
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	maxFailures := cfg.MaxSensorFailures
	if maxFailures <= 0 {
		maxFailures = 1
	}

	if c.state != nil {
		prev := c.state.SetMode(device.ModeAligning)
		defer c.state.SetMode(prev)
	}
	c.cue(ctx, audio.Compass)
	defer c.feedback.Stop()

	slog.Info("Aligning", "keyword", keyword, "target", target, "tolerance", tolerance)

	var wake <-chan struct{}
	if n, ok := c.interrupt.(interface{ Done() <-chan struct{} }); ok {
		wake = n.Done()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomeCancelled
			return res, err
		}
		if c.interrupt != nil && c.interrupt.Requested() {
			c.feedback.Stop()
			res.Outcome = OutcomeCancelled
			slog.Info("Alignment interrupted", "samples", res.Samples)
			return res, nil
		}

		h, err := c.compass.Heading(ctx)
		if err != nil {
			failures++
			if failures >= maxFailures {
				c.feedback.Stop()
				res.Outcome = OutcomeNoSignal
				return res, fmt.Errorf("%w: %d consecutive failures: %v", ErrSensorUnavailable, failures, err)
			}
			slog.Debug("Compass read failed", "failures", failures, "error", err)
		} else {
			failures = 0
			res.Samples++
			res.Heading = h
			res.Error = geo.AngularError(target, h, cfg.CircularError)
			logging.TraceDefault("Align sample", "heading", h, "error", res.Error)
			if c.state != nil {
				c.state.SetHeading(h, time.Now())
			}
			if res.Error < tolerance {
				c.feedback.Stop()
				res.Outcome = OutcomeAligned
				slog.Info("Aligned", "heading", math.Round(h), "samples", res.Samples)
				c.cue(ctx, audio.CompassExit)
				return res, nil
			}
			c.feedback.Vibrate(Intensity(res.Error, cfg.MaxIntensity))
		}

		select {
		case <-ctx.Done():
		case <-wake:
		case <-ticker.C:
		}
	}
}

func (c *Controller) cue(ctx context.Context, key audio.Key) {
	if c.cues == nil {
		return
	}
	if err := c.cues.Prompt(ctx, key); err != nil {
		slog.Debug("Alignment cue failed", "key", key, "error", err)
	}
}
