// Package probe runs the startup checks. A failed critical probe aborts
// the boot; the rest are logged and the device starts degraded.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ocular/pkg/sensor"
)

const defaultTimeout = 5 * time.Second

// CheckFunc performs one check and returns nil when it passes.
type CheckFunc func(ctx context.Context) error

// Probe represents a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool          // a failure prevents startup
	Timeout  time.Duration // zero means five seconds
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes the probes in order, each under its own timeout.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	for i, p := range probes {
		start := time.Now()

		timeout := p.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Check(pctx)
		cancel()

		results[i] = Result{
			Probe:    p,
			Error:    err,
			Duration: time.Since(start),
		}
	}

	return results
}

// AnalyzeResults logs every result and joins the critical failures.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Startup Checks Summary")

	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}

		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		if r.Error != nil {
			slog.Error(msg, "error", r.Error, "critical", r.Probe.Critical)
			if r.Probe.Critical {
				criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
			}
		} else {
			slog.Info(msg)
		}
	}

	return errors.Join(criticalErrors...)
}

// Compass reads one heading.
func Compass(c sensor.Compass, critical bool) Probe {
	return Probe{
		Name:     "Compass",
		Critical: critical,
		Check: func(ctx context.Context) error {
			_, err := c.Heading(ctx)
			return err
		},
	}
}

// Position reads the receiver once. No fix yet is not a failure.
func Position(p sensor.PositionSource) Probe {
	return Probe{
		Name: "GPS",
		Check: func(ctx context.Context) error {
			pos, err := p.Position(ctx)
			if err != nil {
				return err
			}
			if !pos.Valid() {
				slog.Info("GPS has no fix yet")
			}
			return nil
		},
	}
}

// Remote fetches one field from the remote store.
func Remote(get func(ctx context.Context, field string) (any, error)) Probe {
	return Probe{
		Name:    "Remote store",
		Timeout: 10 * time.Second,
		Check: func(ctx context.Context) error {
			_, err := get(ctx, "emergency")
			return err
		},
	}
}

// Prompts checks that every prompt clip is present.
func Prompts(validate func() error) Probe {
	return Probe{
		Name:     "Audio prompts",
		Critical: true,
		Check:    func(ctx context.Context) error { return validate() },
	}
}
