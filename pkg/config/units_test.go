package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"250ms", 250 * time.Millisecond, false},
		{"30s", 30 * time.Second, false},
		{"1.5h", 90 * time.Minute, false},
		{"30d", 30 * Day, false},
		{"1w2d", 9 * Day, false},
		{"2d2h", 50 * time.Hour, false},
		{"", 0, false},
		{"soon", 0, true},
		{"2dx", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"8.5m", 8.5, false},
		{"0.0085km", 8.5, false},
		{"50cm", 0.5, false},
		{"10ft", 3.048, false},
		{"15", 15, false},
		{"far", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDistance(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestUnitsYAML(t *testing.T) {
	var cfg struct {
		Window Duration `yaml:"window"`
		Radius Distance `yaml:"radius"`
		Move   Distance `yaml:"move"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("window: 30m\nradius: 8.5m\nmove: 20\n"), &cfg))
	assert.Equal(t, 30*time.Minute, cfg.Window.Std())
	assert.Equal(t, 8.5, cfg.Radius.Meters())
	assert.Equal(t, 20.0, cfg.Move.Meters())

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "radius: 8.5m")
}
