package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ocular/pkg/model"
	"ocular/pkg/store"
)

// HistoryHandler serves the incident and trip logs.
type HistoryHandler struct {
	incidents store.IncidentStore
	trips     store.TripStore
}

// NewHistoryHandler creates a HistoryHandler. Returns nil if dependencies are missing.
func NewHistoryHandler(inc store.IncidentStore, trips store.TripStore) *HistoryHandler {
	if inc == nil || trips == nil {
		return nil
	}
	return &HistoryHandler{incidents: inc, trips: trips}
}

// HandleIncidents handles GET /api/incidents?days=N (default 7).
func (h *HistoryHandler) HandleIncidents(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid days", http.StatusBadRequest)
			return
		}
		days = n
	}

	list, err := h.incidents.ListIncidents(r.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		slog.Error("Failed to list incidents", "error", err)
		http.Error(w, "failed to list incidents", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*model.Incident{}
	}
	writeJSON(w, list)
}

// HandleTrips handles GET /api/trips?limit=N (default 20).
func (h *HistoryHandler) HandleTrips(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	list, err := h.trips.ListTrips(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list trips", "error", err)
		http.Error(w, "failed to list trips", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*model.Trip{}
	}
	writeJSON(w, list)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
