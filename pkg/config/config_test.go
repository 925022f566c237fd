package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "ocular.yaml")

	tests := []struct {
		name          string
		setup         func()
		validate      func(*testing.T, *Config)
		checkFile     func(*testing.T)
		expectedError bool
	}{
		{
			name:  "NewFile_Defaults",
			setup: func() {},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Align.Tolerance != 8 {
					t.Errorf("expected default tolerance 8, got %v", cfg.Align.Tolerance)
				}
				if cfg.Emergency.MaxThreshold != 2500 {
					t.Errorf("expected max threshold 2500, got %d", cfg.Emergency.MaxThreshold)
				}
				if cfg.Route.ArrivalRadius.Meters() != 8.5 {
					t.Errorf("expected arrival radius 8.5m, got %v", cfg.Route.ArrivalRadius)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "tolerance_deg: 8") {
					t.Error("config file missing default values")
				}
				if !strings.Contains(string(content), "# Options: hardware, mock") {
					t.Error("config file missing provider options comment")
				}
			},
		},
		{
			name: "ExistingFile_Override",
			setup: func() {
				err := os.WriteFile(configPath, []byte("align:\n  tolerance_deg: 20\n  circular_error: false\nroute:\n  arrival_radius: 0.0085km\nemergency:\n  increment_interval: 1m\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Align.Tolerance != 20 {
					t.Errorf("expected tolerance 20, got %v", cfg.Align.Tolerance)
				}
				if cfg.Align.CircularError {
					t.Error("expected circular_error false")
				}
				if cfg.Emergency.IncrementInterval.Std() != time.Minute {
					t.Errorf("expected increment interval 1m, got %v", cfg.Emergency.IncrementInterval.Std())
				}
				// Untouched sections keep defaults.
				if cfg.Buttons.Cooldown.Std() != 30*time.Second {
					t.Errorf("expected default cooldown, got %v", cfg.Buttons.Cooldown.Std())
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if strings.Contains(string(content), "max_threshold") {
					t.Error("existing config file must not be rewritten")
				}
			},
		},
		{
			name: "InvalidValue",
			setup: func() {
				err := os.WriteFile(configPath, []byte("align:\n  tolerance_deg: 0\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
		{
			name: "MalformedYAML",
			setup: func() {
				err := os.WriteFile(configPath, []byte("align: [\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Remove(configPath)
			tt.setup()

			cfg, err := Load(configPath)
			if (err != nil) != tt.expectedError {
				t.Fatalf("Load() error = %v, expectedError %v", err, tt.expectedError)
			}
			if tt.expectedError {
				return
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
			if tt.checkFile != nil {
				tt.checkFile(t)
			}
		})
	}
}

func TestLoad_EnvFallback(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "ocular.yaml")
	t.Setenv("GMAPS_API_KEY", "maps-key")
	t.Setenv("RPI_DEV_ID", "dev-42")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Maps.Key != "maps-key" {
		t.Errorf("expected maps key from env, got %q", cfg.Maps.Key)
	}
	if cfg.Remote.DeviceID != "dev-42" {
		t.Errorf("expected device id from env, got %q", cfg.Remote.DeviceID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"Defaults", func(*Config) {}, false},
		{"ToleranceTooLarge", func(c *Config) { c.Align.Tolerance = 181 }, true},
		{"CeilingBelowInitial", func(c *Config) { c.Emergency.InitialThreshold = 3000 }, true},
		{"ZeroIncrement", func(c *Config) { c.Emergency.Increment = 0 }, true},
		{"NegativeWindow", func(c *Config) { c.NoMotion.Window = Duration(-time.Second) }, true},
		{"UnknownDevice", func(c *Config) { c.Device.Provider = "serial" }, true},
		{"UnknownRemote", func(c *Config) { c.Remote.Provider = "mongo" }, true},
		{"BadLanguage", func(c *Config) { c.Speech.Language = "english" }, true},
		{"RegionLanguage", func(c *Config) { c.Speech.Language = "hi-IN" }, false},
		{"CutoffOutOfRange", func(c *Config) { c.Commands.Cutoff = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateDefault_KeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "ocular.yaml")
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("custom: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault() error = %v", err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "custom: true\n" {
		t.Errorf("existing file overwritten: %q", content)
	}
}
