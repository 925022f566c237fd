package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"ocular/pkg/config"
	"ocular/pkg/device"
	"ocular/pkg/store"
)

var errInvalidValue = errors.New("invalid value")

// ConfigHandler handles runtime settings requests.
type ConfigHandler struct {
	store   store.StateStore
	cfgProv config.Provider
	state   *device.State
}

// NewConfigHandler creates a new ConfigHandler. Returns nil without a state store.
func NewConfigHandler(st store.StateStore, cfg config.Provider, state *device.State) *ConfigHandler {
	if st == nil {
		return nil
	}
	return &ConfigHandler{
		store:   st,
		cfgProv: cfg,
		state:   state,
	}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	Language        string  `json:"language"`
	OwnerName       string  `json:"owner_name"`
	AlignTolerance  float64 `json:"align_tolerance"`
	NoMotionEnabled bool    `json:"no_motion_enabled"`
	DeviceProvider  string  `json:"device_provider"`
	Volume          float64 `json:"volume"`
}

// ConfigRequest represents the config API request for updates. Pointers
// tell false apart from missing.
type ConfigRequest struct {
	Language        string   `json:"language,omitempty"`
	OwnerName       string   `json:"owner_name,omitempty"`
	AlignTolerance  *float64 `json:"align_tolerance,omitempty"`
	NoMotionEnabled *bool    `json:"no_motion_enabled,omitempty"`
	DeviceProvider  string   `json:"device_provider,omitempty"`
}

// HandleConfig is a unified handler for all config-related methods, facilitating CORS/OPTIONS.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		h.HandleGetConfig(w, r)
	case http.MethodPut, http.MethodPost:
		h.HandleSetConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleGetConfig returns the current settings.
func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.getConfigResponse(r.Context()))
}

func (h *ConfigHandler) getConfigResponse(ctx context.Context) ConfigResponse {
	volume := 1.0
	if volStr, ok := h.store.GetState(ctx, "volume"); ok && volStr != "" {
		var val float64
		if _, err := fmt.Sscanf(volStr, "%f", &val); err == nil {
			volume = val
		}
	}

	return ConfigResponse{
		Language:        h.state.Language(),
		OwnerName:       h.cfgProv.OwnerName(ctx),
		AlignTolerance:  h.cfgProv.AlignTolerance(ctx),
		NoMotionEnabled: h.cfgProv.NoMotionEnabled(ctx),
		DeviceProvider:  h.cfgProv.DeviceProvider(ctx),
		Volume:          volume,
	}
}

// HandleSetConfig updates the settings and returns the result.
func (h *ConfigHandler) HandleSetConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.Body.Close() }()

	var req ConfigRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.apply(r.Context(), &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.HandleGetConfig(w, r)
}

func (h *ConfigHandler) apply(ctx context.Context, req *ConfigRequest) error {
	if req.AlignTolerance != nil && (*req.AlignTolerance <= 0 || *req.AlignTolerance > 180) {
		return fmt.Errorf("%w: align_tolerance must be within (0,180]", errInvalidValue)
	}
	if req.DeviceProvider != "" && req.DeviceProvider != "hardware" && req.DeviceProvider != "mock" {
		return fmt.Errorf("%w: device_provider must be hardware or mock", errInvalidValue)
	}

	if req.Language != "" {
		if err := h.cfgProv.SetLanguage(ctx, req.Language); err != nil {
			return err
		}
		h.state.SetLanguage(req.Language)
		slog.Debug("Config updated", "language", req.Language)
	}
	if req.OwnerName != "" {
		if err := h.cfgProv.SetOwnerName(ctx, req.OwnerName); err != nil {
			return err
		}
	}
	if req.AlignTolerance != nil {
		h.setState(ctx, config.KeyAlignTolerance, fmt.Sprintf("%.2f", *req.AlignTolerance))
	}
	if req.NoMotionEnabled != nil {
		h.setState(ctx, config.KeyNoMotionEnabled, fmt.Sprintf("%t", *req.NoMotionEnabled))
	}
	if req.DeviceProvider != "" {
		// Takes effect on the next start.
		h.setState(ctx, config.KeyDeviceProvider, req.DeviceProvider)
	}
	return nil
}

func (h *ConfigHandler) setState(ctx context.Context, key, val string) {
	if err := h.store.SetState(ctx, key, val); err != nil {
		slog.Error("Failed to save state", "key", key, "error", err)
		return
	}
	slog.Debug("Config updated", key, val)
}
