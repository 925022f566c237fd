package core

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"ocular/pkg/device"
	"ocular/pkg/geo"
	"ocular/pkg/store"
)

const contextKey = "device_context"

// DeviceContext is the part of the device record that survives a restart.
type DeviceContext struct {
	Language     string    `json:"language"`
	LastPosition geo.Point `json:"last_position"`
	PositionAt   time.Time `json:"position_at"`
}

// ContextPersistence saves the device context when it changes.
type ContextPersistence struct {
	st        store.StateStore
	lastSaved []byte
}

// NewContextPersistence creates the persister.
func NewContextPersistence(st store.StateStore) *ContextPersistence {
	return &ContextPersistence{st: st}
}

// Save stores the context derived from snap. The last valid position is
// kept while the fix is lost.
func (p *ContextPersistence) Save(ctx context.Context, snap device.Snapshot) {
	dc := DeviceContext{Language: snap.Language}
	if snap.HasFix() {
		dc.LastPosition = snap.Position
		dc.PositionAt = snap.PositionAt
	} else if prev, ok := LoadContext(ctx, p.st); ok {
		dc.LastPosition = prev.LastPosition
		dc.PositionAt = prev.PositionAt
	}

	data, err := json.Marshal(dc)
	if err != nil {
		slog.Error("Persistence: Failed to serialize device context", "error", err)
		return
	}
	if bytes.Equal(data, p.lastSaved) {
		return
	}
	if err := p.st.SetState(ctx, contextKey, string(data)); err != nil {
		slog.Error("Persistence: Failed to save device context", "error", err)
		return
	}
	p.lastSaved = data
	slog.Debug("Persistence: Device context saved", "size", len(data))
}

// LoadContext returns the saved context, if any.
func LoadContext(ctx context.Context, st store.StateStore) (DeviceContext, bool) {
	var dc DeviceContext
	raw, ok := st.GetState(ctx, contextKey)
	if !ok || raw == "" {
		return dc, false
	}
	if err := json.Unmarshal([]byte(raw), &dc); err != nil {
		slog.Warn("Persistence: Discarding unreadable device context", "error", err)
		return dc, false
	}
	return dc, true
}

// RestoreContext applies the saved language to state.
func RestoreContext(ctx context.Context, st store.StateStore, state *device.State) (DeviceContext, bool) {
	dc, ok := LoadContext(ctx, st)
	if !ok {
		return dc, false
	}
	state.SetLanguage(dc.Language)
	slog.Info("Persistence: Device context restored", "language", dc.Language, "last_position", dc.LastPosition)
	return dc, true
}
