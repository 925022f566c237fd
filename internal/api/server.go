package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ocular/pkg/version"
)

// Handlers groups the endpoint handlers. Nil handlers are not registered.
type Handlers struct {
	Status  *StatusHandler
	Config  *ConfigHandler
	Stats   *StatsHandler
	History *HistoryHandler
	Route   *RouteHandler
	Audio   *AudioHandler
	Mock    *MockHandler
}

// NewServer creates and configures the HTTP server.
// shutdown is called, after the response is flushed, on POST /api/shutdown.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	return &http.Server{
		Addr:        addr,
		Handler:     newMux(h, shutdown),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /api/stream is long-lived and sets its own deadlines.
		IdleTimeout: 60 * time.Second,
	}
}

func newMux(h Handlers, shutdown func()) *http.ServeMux {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Device status
	if h.Status != nil {
		mux.HandleFunc("GET /api/status", h.Status.HandleStatus)
		mux.HandleFunc("GET /api/stream", h.Status.HandleStream)
	}
	if h.Route != nil {
		mux.HandleFunc("GET /api/route", h.Route.Handle)
	}

	// 3. Settings
	if h.Config != nil {
		mux.HandleFunc("/api/config", h.Config.HandleConfig)
	}

	// 4. Diagnostics
	if h.Stats != nil {
		mux.Handle("GET /api/stats", h.Stats)
	}
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/events/latest", handleLatestEvent)

	// 5. History
	if h.History != nil {
		mux.HandleFunc("GET /api/incidents", h.History.HandleIncidents)
		mux.HandleFunc("GET /api/trips", h.History.HandleTrips)
	}

	// 6. Audio
	if h.Audio != nil {
		mux.HandleFunc("POST /api/audio/volume", h.Audio.HandleVolume)
		mux.HandleFunc("POST /api/audio/stop", h.Audio.HandleStop)
		mux.HandleFunc("GET /api/audio/status", h.Audio.HandleStatus)
	}

	// 7. Simulated device
	if h.Mock != nil {
		mux.HandleFunc("POST /api/mock/button/{name}", h.Mock.HandleButton)
		mux.HandleFunc("POST /api/mock/say", h.Mock.HandleSay)
		mux.HandleFunc("POST /api/mock/walker", h.Mock.HandleWalker)
	}

	// 8. Shutdown
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
