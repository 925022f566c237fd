package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"ocular/pkg/store"
)

// VolumeControl is the speaker volume.
type VolumeControl interface {
	SetVolume(vol float64)
	Volume() float64
	Stop()
}

// AudioHandler handles audio control endpoints.
type AudioHandler struct {
	audio VolumeControl
	store store.StateStore
}

// NewAudioHandler creates a new AudioHandler. Returns nil without a speaker.
func NewAudioHandler(a VolumeControl, st store.StateStore) *AudioHandler {
	if a == nil {
		return nil
	}
	return &AudioHandler{audio: a, store: st}
}

// AudioVolumeRequest represents a volume change request.
type AudioVolumeRequest struct {
	Volume float64 `json:"volume"`
}

// HandleVolume handles POST /api/audio/volume
func (h *AudioHandler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	var req AudioVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Volume < 0 || req.Volume > 1 {
		http.Error(w, "volume must be within [0,1]", http.StatusBadRequest)
		return
	}

	h.audio.SetVolume(req.Volume)

	if h.store != nil {
		strVal := fmt.Sprintf("%.2f", req.Volume)
		if err := h.store.SetState(r.Context(), "volume", strVal); err != nil {
			slog.Error("Failed to persist volume", "error", err)
		}
	}

	writeJSON(w, map[string]any{
		"status": "ok",
		"volume": h.audio.Volume(),
	})
}

// HandleStop handles POST /api/audio/stop
func (h *AudioHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.audio.Stop()
	writeJSON(w, map[string]string{"status": "ok", "state": "stopped"})
}

// HandleStatus handles GET /api/audio/status
func (h *AudioHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"volume": h.audio.Volume()})
}
