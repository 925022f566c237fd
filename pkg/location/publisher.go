// Package location publishes the device position to the companion app.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"ocular/pkg/config"
	"ocular/pkg/device"
	"ocular/pkg/geo"
	"ocular/pkg/remote"
)

// Publisher pushes the live position at a bounded rate. A device that has
// not moved is re-published only on the heartbeat.
type Publisher struct {
	prov   config.Provider
	state  *device.State
	remote remote.Store
	clock  clock.Clock

	mu          sync.Mutex
	lastAttempt time.Time
	lastPush    time.Time
	lastPoint   geo.Point
}

// NewPublisher creates a Publisher. clk may be nil.
func NewPublisher(prov config.Provider, state *device.State, rs remote.Store, clk clock.Clock) *Publisher {
	if clk == nil {
		clk = clock.New()
	}
	return &Publisher{
		prov:      prov,
		state:     state,
		remote:    rs,
		clock:     clk,
		lastPoint: geo.NoFix,
	}
}

// Tick publishes the position if it is due and refreshes the user language.
func (p *Publisher) Tick(ctx context.Context) error {
	cfg := p.prov.AppConfig().Location
	now := p.clock.Now()

	p.mu.Lock()
	if !p.lastAttempt.IsZero() && now.Sub(p.lastAttempt) < cfg.Interval.Std() {
		p.mu.Unlock()
		return nil
	}
	p.lastAttempt = now
	lastPoint, lastPush := p.lastPoint, p.lastPush
	p.mu.Unlock()

	if cfg.FollowRemoteLanguage {
		p.refreshLanguage(ctx)
	}

	pos := p.state.Position()
	if !pos.Valid() {
		return nil
	}

	if lastPoint.Valid() &&
		geo.Distance(lastPoint, pos) < cfg.MinMove.Meters() &&
		now.Sub(lastPush) < cfg.Heartbeat.Std() {
		return nil
	}

	fields := map[string]any{
		remote.FieldLatitude:        pos.Lat,
		remote.FieldLongitude:       pos.Lon,
		remote.FieldLocationUpdated: now.UTC().Format(time.RFC3339),
	}
	if cell, err := geo.Cell(pos, cfg.H3Resolution); err == nil {
		fields[remote.FieldCell] = cell
	} else {
		slog.Debug("No H3 cell for position", "error", err)
	}

	if err := p.remote.Set(ctx, fields); err != nil {
		return fmt.Errorf("publish location: %w", err)
	}

	p.mu.Lock()
	p.lastPoint = pos
	p.lastPush = now
	p.mu.Unlock()

	slog.Debug("Location published", "lat", pos.Lat, "lon", pos.Lon)
	return nil
}

func (p *Publisher) refreshLanguage(ctx context.Context) {
	v, err := p.remote.Get(ctx, remote.FieldLanguage)
	if errors.Is(err, remote.ErrFieldMissing) {
		return
	}
	if err != nil {
		slog.Debug("Language refresh failed", "error", err)
		return
	}
	lang, ok := remote.String(v)
	if !ok || lang == "" || lang == p.state.Language() {
		return
	}
	slog.Info("User language changed", "lang", lang)
	p.state.SetLanguage(lang)
	if err := p.prov.SetLanguage(ctx, lang); err != nil {
		slog.Warn("Failed to persist language", "error", err)
	}
}

// LastPublished returns the last published position and when it was sent.
func (p *Publisher) LastPublished() (geo.Point, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPoint, p.lastPush
}
