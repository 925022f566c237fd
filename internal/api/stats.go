package api

import (
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"ocular/pkg/tracker"
)

// StatsHandler reports outbound API usage and process health.
type StatsHandler struct {
	tracker *tracker.Tracker
	started time.Time

	mu     sync.Mutex
	maxMem uint64
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(t *tracker.Tracker) *StatsHandler {
	return &StatsHandler{tracker: t, started: time.Now()}
}

// ProviderStatsDTO is one provider's counters.
type ProviderStatsDTO struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APISuccess  int64 `json:"api_success"`
	APIFailures int64 `json:"api_errors"`
	APIRetries  int64 `json:"api_retries"`
	HitRate     int64 `json:"hit_rate"`
}

// Diagnostics describes the running process.
type Diagnostics struct {
	UptimeSec   int64  `json:"uptime_sec"`
	MemoryMB    uint64 `json:"memory_mb"`
	MemoryMaxMB uint64 `json:"memory_max_mb"`
	Goroutines  int    `json:"goroutines"`
}

// StatsResponse is the GET /api/stats body.
type StatsResponse struct {
	Diagnostics Diagnostics                 `json:"diagnostics"`
	Providers   map[string]ProviderStatsDTO `json:"providers"`
	Failing     []string                    `json:"failing"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Diagnostics: h.gatherDiagnostics(),
		Providers:   make(map[string]ProviderStatsDTO),
		Failing:     []string{},
	}

	for provider, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:   stats.CacheHits,
			CacheMisses: stats.CacheMisses,
			APISuccess:  stats.Success,
			APIFailures: stats.Failures,
			APIRetries:  stats.Retries,
			HitRate:     hitRate,
		}
		// Failing: the last failure is more recent than five minutes.
		if !stats.LastFailure.IsZero() && time.Since(stats.LastFailure) < 5*time.Minute {
			resp.Failing = append(resp.Failing, provider)
		}
	}
	sort.Strings(resp.Failing)

	writeJSON(w, resp)
}

func (h *StatsHandler) gatherDiagnostics() Diagnostics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.mu.Lock()
	if ms.Sys > h.maxMem {
		h.maxMem = ms.Sys
	}
	maxMem := h.maxMem
	h.mu.Unlock()

	return Diagnostics{
		UptimeSec:   int64(time.Since(h.started).Seconds()),
		MemoryMB:    bToMb(ms.Sys),
		MemoryMaxMB: bToMb(maxMem),
		Goroutines:  runtime.NumGoroutine(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
