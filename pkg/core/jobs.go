package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"ocular/pkg/device"
)

// Job is a periodic task the Scheduler offers every snapshot to.
type Job interface {
	Name() string
	ShouldFire(s *device.Snapshot) bool
	Run(ctx context.Context, s *device.Snapshot)
}

// runGuard keeps a job from overlapping itself when a run outlasts the tick.
type runGuard struct {
	name string
	busy atomic.Bool
}

func (g *runGuard) Name() string { return g.name }

func (g *runGuard) enter() bool { return g.busy.CompareAndSwap(false, true) }

func (g *runGuard) leave() { g.busy.Store(false) }

// TimeJob fires when at least every has elapsed since its last run, and
// on the first tick.
type TimeJob struct {
	runGuard
	clock  clock.Clock
	every  time.Duration
	action func(context.Context, device.Snapshot)

	mu   sync.Mutex
	last time.Time // zero until the first run
}

func NewTimeJob(name string, every time.Duration, action func(context.Context, device.Snapshot)) *TimeJob {
	return NewTimeJobWithClock(name, every, clock.New(), action)
}

// NewTimeJobWithClock is NewTimeJob on a caller-supplied clock.
func NewTimeJobWithClock(name string, every time.Duration, clk clock.Clock, action func(context.Context, device.Snapshot)) *TimeJob {
	return &TimeJob{runGuard: runGuard{name: name}, clock: clk, every: every, action: action}
}

func (j *TimeJob) ShouldFire(s *device.Snapshot) bool {
	if j.busy.Load() {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last.IsZero() || j.clock.Since(j.last) >= j.every
}

func (j *TimeJob) Run(ctx context.Context, s *device.Snapshot) {
	if !j.enter() {
		return
	}
	defer j.leave()

	j.mu.Lock()
	j.last = j.clock.Now()
	j.mu.Unlock()

	j.action(ctx, *s)
}

// OnceJob retries its action every tick until it reports success.
type OnceJob struct {
	runGuard
	done   atomic.Bool
	action func(context.Context, device.Snapshot) bool
}

func NewOnceJob(name string, action func(context.Context, device.Snapshot) bool) *OnceJob {
	return &OnceJob{runGuard: runGuard{name: name}, action: action}
}

func (j *OnceJob) ShouldFire(s *device.Snapshot) bool {
	return !j.done.Load() && !j.busy.Load()
}

func (j *OnceJob) Run(ctx context.Context, s *device.Snapshot) {
	if !j.enter() {
		return
	}
	defer j.leave()

	if j.action(ctx, *s) {
		j.done.Store(true)
	}
}

// Done reports whether the action has succeeded.
func (j *OnceJob) Done() bool { return j.done.Load() }
