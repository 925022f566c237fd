// Package tracker counts outbound API calls per provider.
package tracker

import (
	"sync"
	"sync/atomic"
	"time"
)

// Tracker tracks usage statistics per provider. A nil Tracker is a no-op.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*counters
}

type counters struct {
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	success     atomic.Int64
	failures    atomic.Int64
	retries     atomic.Int64
	lastFailure atomic.Int64 // unix nanos
}

// ProviderStats is a point-in-time copy of one provider's counters.
type ProviderStats struct {
	CacheHits   int64     `json:"cache_hits"`
	CacheMisses int64     `json:"cache_misses"`
	Success     int64     `json:"success"`
	Failures    int64     `json:"failures"`
	Retries     int64     `json:"retries"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{stats: make(map[string]*counters)}
}

func (t *Tracker) get(provider string) *counters {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &counters{}
	t.stats[provider] = s
	return s
}

func (t *Tracker) TrackCacheHit(provider string) {
	if t != nil {
		t.get(provider).cacheHits.Add(1)
	}
}

func (t *Tracker) TrackCacheMiss(provider string) {
	if t != nil {
		t.get(provider).cacheMisses.Add(1)
	}
}

func (t *Tracker) TrackSuccess(provider string) {
	if t != nil {
		t.get(provider).success.Add(1)
	}
}

func (t *Tracker) TrackRetry(provider string) {
	if t != nil {
		t.get(provider).retries.Add(1)
	}
}

func (t *Tracker) TrackFailure(provider string) {
	if t == nil {
		return
	}
	c := t.get(provider)
	c.failures.Add(1)
	c.lastFailure.Store(time.Now().UnixNano())
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	result := make(map[string]ProviderStats)
	if t == nil {
		return result
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	for k, v := range t.stats {
		s := ProviderStats{
			CacheHits:   v.cacheHits.Load(),
			CacheMisses: v.cacheMisses.Load(),
			Success:     v.success.Load(),
			Failures:    v.failures.Load(),
			Retries:     v.retries.Load(),
		}
		if ns := v.lastFailure.Load(); ns != 0 {
			s.LastFailure = time.Unix(0, ns)
		}
		result[k] = s
	}
	return result
}
