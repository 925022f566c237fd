// Package mocksensor simulates a pedestrian carrying the device. It stands
// in for the compass and the GPS receiver on a development machine.
package mocksensor

import (
	"context"
	"math"
	"sync"
	"time"

	"ocular/pkg/geo"
)

const (
	StageAcquiring = "ACQUIRING"
	StageStanding  = "STANDING"
	StageWalking   = "WALKING"

	tickRateMs = 100
	axisScale  = 1000.0
)

// Config holds the starting conditions of the walker.
type Config struct {
	StartLat     float64
	StartLon     float64
	StartHeading float64
	TurnRate     float64 // degrees per second
	WalkSpeed    float64 // meters per second
	FixDelay     time.Duration
}

// Walker implements sensor.HeadingSource and sensor.PositionSource.
type Walker struct {
	mu         sync.Mutex
	cfg        Config
	stage      string
	stageStart time.Time
	pos        geo.Point
	heading    float64
	target     *float64
	walking    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
	once       sync.Once
}

// New creates a walker and starts its physics loop.
func New(cfg Config) *Walker {
	w := newWalker(cfg)
	w.wg.Add(1)
	go w.physicsLoop()
	return w
}

func newWalker(cfg Config) *Walker {
	if cfg.TurnRate <= 0 {
		cfg.TurnRate = 30
	}
	stage := StageAcquiring
	if cfg.FixDelay <= 0 {
		stage = StageStanding
	}
	return &Walker{
		cfg:        cfg,
		stage:      stage,
		stageStart: time.Now(),
		pos:        geo.Point{Lat: cfg.StartLat, Lon: cfg.StartLon},
		heading:    geo.NormalizeHeading(cfg.StartHeading),
		stopCh:     make(chan struct{}),
	}
}

// Read returns magnetometer axes matching the current heading.
func (w *Walker) Read(ctx context.Context) (x, y int16, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	w.mu.Lock()
	h := w.heading
	w.mu.Unlock()
	rad := h * (math.Pi / 180.0)
	return int16(math.Round(math.Cos(rad) * axisScale)), int16(math.Round(math.Sin(rad) * axisScale)), nil
}

// Position returns geo.NoFix until the simulated receiver has acquired.
func (w *Walker) Position(ctx context.Context) (geo.Point, error) {
	if err := ctx.Err(); err != nil {
		return geo.NoFix, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stage == StageAcquiring {
		return geo.NoFix, nil
	}
	return w.pos, nil
}

// Stage returns the current simulation stage.
func (w *Walker) Stage() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

// TurnTo makes the walker rotate toward heading at the configured rate.
func (w *Walker) TurnTo(heading float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := geo.NormalizeHeading(heading)
	w.target = &h
}

// Walk starts or stops forward motion.
func (w *Walker) Walk(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.walking = on
}

// Teleport moves the walker, e.g. to replay a route from the dev API.
func (w *Walker) Teleport(p geo.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pos = p
}

// Close stops the physics loop.
func (w *Walker) Close() error {
	w.once.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	return nil
}

func (w *Walker) physicsLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(time.Duration(tickRateMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case now := <-ticker.C:
			w.step(now, float64(tickRateMs)/1000.0)
		}
	}
}

func (w *Walker) step(now time.Time, dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stage == StageAcquiring {
		if now.Sub(w.stageStart) < w.cfg.FixDelay {
			return
		}
		w.stage = StageStanding
		w.stageStart = now
	}

	if w.target != nil {
		diff := geo.NormalizeAngle(*w.target - w.heading)
		maxTurn := w.cfg.TurnRate * dt
		if math.Abs(diff) <= maxTurn {
			w.heading = *w.target
			w.target = nil
		} else {
			w.heading = geo.NormalizeHeading(w.heading + math.Copysign(maxTurn, diff))
		}
	}

	switch {
	case w.walking && w.cfg.WalkSpeed > 0:
		if w.stage != StageWalking {
			w.stage = StageWalking
			w.stageStart = now
		}
		w.pos = geo.DestinationPoint(w.pos, w.cfg.WalkSpeed*dt, w.heading)
	case w.stage == StageWalking:
		w.stage = StageStanding
		w.stageStart = now
	}
}
