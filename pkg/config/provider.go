package config

import (
	"context"
	"strconv"

	"ocular/pkg/store"
)

// Provider exposes settings that the companion app or the device itself can
// change at runtime. Values persisted in the state store win over the YAML file.
type Provider interface {
	DeviceProvider(ctx context.Context) string
	Language(ctx context.Context) string
	SetLanguage(ctx context.Context, lang string) error
	OwnerName(ctx context.Context) string
	SetOwnerName(ctx context.Context, name string) error
	AlignTolerance(ctx context.Context) float64
	NoMotionEnabled(ctx context.Context) bool

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

func (p *UnifiedProvider) DeviceProvider(ctx context.Context) string {
	fallback := p.base.Device.Provider
	if fallback == "" {
		fallback = "hardware"
	}
	return p.getString(ctx, KeyDeviceProvider, fallback)
}

func (p *UnifiedProvider) Language(ctx context.Context) string {
	return p.getString(ctx, KeyLanguage, p.base.Speech.Language)
}

func (p *UnifiedProvider) SetLanguage(ctx context.Context, lang string) error {
	if p.store == nil || lang == "" {
		return nil
	}
	return p.store.SetState(ctx, KeyLanguage, lang)
}

func (p *UnifiedProvider) OwnerName(ctx context.Context) string {
	return p.getString(ctx, KeyOwnerName, "")
}

func (p *UnifiedProvider) SetOwnerName(ctx context.Context, name string) error {
	if p.store == nil || name == "" {
		return nil
	}
	return p.store.SetState(ctx, KeyOwnerName, name)
}

func (p *UnifiedProvider) AlignTolerance(ctx context.Context) float64 {
	v := p.getFloat64(ctx, KeyAlignTolerance, p.base.Align.Tolerance)
	if v <= 0 || v > 180 {
		return p.base.Align.Tolerance
	}
	return v
}

func (p *UnifiedProvider) NoMotionEnabled(ctx context.Context) bool {
	return p.getBool(ctx, KeyNoMotionEnabled, p.base.NoMotion.Enabled)
}

// --- Helpers ---

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getFloat64(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}

func (p *UnifiedProvider) getBool(ctx context.Context, key string, fallback bool) bool {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val == "true"
		}
	}
	return fallback
}
