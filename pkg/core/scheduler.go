// Package core runs the device heartbeat: every tick it samples the
// sensors into the device state and fires the background jobs.
package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"ocular/pkg/config"
	"ocular/pkg/device"
	"ocular/pkg/geo"
	"ocular/pkg/logging"
	"ocular/pkg/sensor"
)

// Scheduler manages the central heartbeat and scheduled jobs.
type Scheduler struct {
	prov    config.Provider
	state   *device.State
	compass sensor.Compass
	pos     sensor.PositionSource
	clock   clock.Clock
	trail   *geo.Trail
	jobs    []Job

	fixLost bool
}

// NewScheduler creates a new Scheduler. trail may be nil.
func NewScheduler(prov config.Provider, state *device.State, compass sensor.Compass, pos sensor.PositionSource, trail *geo.Trail, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		prov:    prov,
		state:   state,
		compass: compass,
		pos:     pos,
		clock:   clk,
		trail:   trail,
		fixLost: true,
	}
}

// AddJob registers a job.
func (s *Scheduler) AddJob(j Job) {
	s.jobs = append(s.jobs, j)
}

// Start runs the main loop. It blocks until context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.prov.AppConfig().Ticker.Loop.Std()
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	slog.Info("Scheduler started", "interval", interval, "jobs", len(s.jobs))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick refreshes the sensors and fires due jobs. Jobs run on their own
// goroutines; a job still running from an earlier tick is skipped.
func (s *Scheduler) Tick(ctx context.Context) {
	s.refresh(ctx)

	snap := s.state.Snapshot()
	for _, job := range s.jobs {
		if job.ShouldFire(&snap) {
			go job.Run(ctx, &snap)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context) {
	r, err := sensor.Sample(ctx, s.compass, s.pos)
	if err != nil {
		slog.Debug("Sensor refresh failed", "error", err)
	}
	now := s.clock.Now()
	logging.TraceDefault("Sensor refresh", "heading", r.Heading, "heading_ok", r.HeadingOK, "lat", r.Position.Lat, "lon", r.Position.Lon)

	if r.HeadingOK {
		s.state.SetHeading(r.Heading, now)
	} else {
		s.state.InvalidateHeading()
	}

	s.state.SetPosition(r.Position, now)
	switch valid := r.Position.Valid(); {
	case valid && s.fixLost:
		slog.Info("GPS fix acquired", "lat", r.Position.Lat, "lon", r.Position.Lon)
		s.fixLost = false
	case !valid && !s.fixLost:
		slog.Warn("GPS fix lost")
		s.fixLost = true
	}
	if s.trail != nil && r.Position.Valid() {
		s.trail.Push(r.Position, 0)
	}
}
