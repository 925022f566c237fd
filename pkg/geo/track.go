package geo

import (
	"sync"

	"github.com/paulmach/orb"
)

// Trail keeps the most recent walked positions and derives the course over
// ground from them. No-fix samples and GPS jitter below minStep are dropped.
type Trail struct {
	mu       sync.RWMutex
	samples  []Point
	capacity int
	minStep  float64
}

// NewTrail creates a trail holding at most capacity points. Points closer
// than minStep meters to the previous one are ignored.
func NewTrail(capacity int, minStep float64) *Trail {
	if capacity < 2 {
		capacity = 2
	}
	return &Trail{
		capacity: capacity,
		minStep:  minStep,
	}
}

// Push records p and returns the course from the oldest to the newest kept
// point. With fewer than two points it returns fallback.
func (t *Trail) Push(p Point, fallback float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.Valid() {
		n := len(t.samples)
		if n == 0 || Distance(t.samples[n-1], p) >= t.minStep {
			t.samples = append(t.samples, p)
			if len(t.samples) > t.capacity {
				t.samples = t.samples[1:]
			}
		}
	}

	if len(t.samples) < 2 {
		return fallback
	}
	return Bearing(t.samples[0], t.samples[len(t.samples)-1])
}

// Points returns a copy of the kept positions, oldest first.
func (t *Trail) Points() []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Point, len(t.samples))
	copy(out, t.samples)
	return out
}

// Length returns the walked distance along the kept points in meters.
func (t *Trail) Length() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for i := 1; i < len(t.samples); i++ {
		total += Distance(t.samples[i-1], t.samples[i])
	}
	return total
}

// Reset clears the trail history.
func (t *Trail) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = nil
}

// ToOrb converts a point to orb's [lon, lat] order.
func ToOrb(p Point) orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// LineString builds an orb line from points, skipping no-fix entries.
func LineString(pts []Point) orb.LineString {
	ls := make(orb.LineString, 0, len(pts))
	for _, p := range pts {
		if p.Valid() {
			ls = append(ls, ToOrb(p))
		}
	}
	return ls
}
