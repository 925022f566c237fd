package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the device configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	DB        DBConfig        `yaml:"db"`
	Server    ServerConfig    `yaml:"server"`
	Request   RequestConfig   `yaml:"request"`
	Ticker    TickerConfig    `yaml:"ticker"`
	Device    DeviceConfig    `yaml:"device"`
	Align     AlignConfig     `yaml:"align"`
	Route     RouteConfig     `yaml:"route"`
	Emergency EmergencyConfig `yaml:"emergency"`
	NoMotion  NoMotionConfig  `yaml:"no_motion"`
	Buttons   ButtonsConfig   `yaml:"buttons"`
	Commands  CommandsConfig  `yaml:"commands"`
	Location  LocationConfig  `yaml:"location"`
	Remote    RemoteConfig    `yaml:"remote"`
	SMS       SMSConfig       `yaml:"sms"`
	Maps      MapsConfig      `yaml:"maps"`
	Speech    SpeechConfig    `yaml:"speech"`
	Vision    VisionConfig    `yaml:"vision"`
	Audio     AudioConfig     `yaml:"audio"`
	Camera    CameraConfig    `yaml:"camera"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// TickerConfig holds the background scheduler cadence.
type TickerConfig struct {
	Loop Duration `yaml:"loop"`
}

// DeviceConfig selects and configures the sensor and actuator hardware.
type DeviceConfig struct {
	Provider       string           `yaml:"provider"` // "hardware", "mock"
	I2CBus         string           `yaml:"i2c_bus"`
	CompassAddress uint16           `yaml:"compass_address"`
	GPSPort        string           `yaml:"gps_port"`
	GPSBaud        uint             `yaml:"gps_baud"`
	ControlPin     string           `yaml:"control_pin"`
	EmergencyPin   string           `yaml:"emergency_pin"`
	MotorPin       string           `yaml:"motor_pin"`
	MotorFrequency int              `yaml:"motor_frequency_hz"`
	Mock           MockDeviceConfig `yaml:"mock"`
}

// MockDeviceConfig holds settings for the simulated sensors.
type MockDeviceConfig struct {
	StartLat     float64  `yaml:"start_lat"`
	StartLon     float64  `yaml:"start_lon"`
	StartHeading float64  `yaml:"start_heading"`
	TurnRate     float64  `yaml:"turn_rate_dps"`
	WalkSpeed    float64  `yaml:"walk_speed_mps"`
	FixDelay     Duration `yaml:"fix_delay"`
}

// AlignConfig holds heading-alignment settings.
type AlignConfig struct {
	Tolerance         float64  `yaml:"tolerance_deg"`
	SampleInterval    Duration `yaml:"sample_interval"`
	MaxIntensity      float64  `yaml:"max_intensity"`
	CircularError     bool     `yaml:"circular_error"`
	MaxSensorFailures int      `yaml:"max_sensor_failures"`
}

// RouteConfig holds route-following settings.
type RouteConfig struct {
	ArrivalRadius Distance `yaml:"arrival_radius"`
	PollInterval  Duration `yaml:"poll_interval"`
}

// EmergencyConfig holds threshold escalation settings.
type EmergencyConfig struct {
	InitialThreshold   int      `yaml:"initial_threshold"`
	Increment          int      `yaml:"increment"`
	IncrementInterval  Duration `yaml:"increment_interval"`
	MaxThreshold       int      `yaml:"max_threshold"`
	PollInterval       Duration `yaml:"poll_interval"`
	HelperPollInterval Duration `yaml:"helper_poll_interval"`
	MapsLinkFormat     string   `yaml:"maps_link_format"`
}

// NoMotionConfig holds immobility watchdog settings.
type NoMotionConfig struct {
	Enabled         bool     `yaml:"enabled"`
	ChangeThreshold float64  `yaml:"change_threshold_deg"`
	Window          Duration `yaml:"window"`
	SampleInterval  Duration `yaml:"sample_interval"`
	Rearm           bool     `yaml:"rearm"`
}

// ButtonsConfig holds button timing settings.
type ButtonsConfig struct {
	TripleWindow    Duration `yaml:"triple_window"`
	Cooldown        Duration `yaml:"cooldown"`
	LongPress       Duration `yaml:"long_press"`
	Debounce        Duration `yaml:"debounce"`
	ControlPoll     Duration `yaml:"control_poll"`
	ControlDebounce Duration `yaml:"control_debounce"`
}

// CommandsConfig holds spoken command resolution settings.
type CommandsConfig struct {
	Cutoff float64 `yaml:"cutoff"`
}

// LocationConfig holds live location publishing settings.
type LocationConfig struct {
	Interval             Duration `yaml:"interval"`
	MinMove              Distance `yaml:"min_move"`
	Heartbeat            Duration `yaml:"heartbeat"`
	H3Resolution         int      `yaml:"h3_resolution"`
	FollowRemoteLanguage bool     `yaml:"follow_remote_language"`
}

// RemoteConfig holds remote document store settings.
type RemoteConfig struct {
	Provider        string `yaml:"provider"` // "firestore", "local"
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	DeviceID        string `yaml:"device_id"`
	Collection      string `yaml:"collection"`
}

// SMSConfig holds message delivery settings.
type SMSConfig struct {
	Provider   string `yaml:"provider"` // "twilio", "log"
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	ServiceID  string `yaml:"service_id"`
}

// MapsConfig holds route provider settings.
type MapsConfig struct {
	Key  string `yaml:"key"`
	Mode string `yaml:"mode"`
}

// SpeechConfig holds speech synthesis, recognition and translation settings.
type SpeechConfig struct {
	Language       string   `yaml:"language"`
	Voice          string   `yaml:"voice"`
	TTSKey         string   `yaml:"tts_key"`
	STTKey         string   `yaml:"stt_key"`
	TranslateKey   string   `yaml:"translate_key"`
	RecordDuration Duration `yaml:"record_duration"`
	RecordCommand  string   `yaml:"record_command"`
	SampleRate     int      `yaml:"sample_rate"`
	CacheDir       string   `yaml:"cache_dir"`
}

// VisionConfig holds scene description settings.
type VisionConfig struct {
	Model  string `yaml:"model"`
	Key    string `yaml:"key"`
	Prompt string `yaml:"prompt"`
}

// AudioConfig holds prompt asset settings.
type AudioConfig struct {
	AssetsDir string `yaml:"assets_dir"`
}

// CameraConfig holds still capture settings.
type CameraConfig struct {
	Command string   `yaml:"command"`
	Output  string   `yaml:"output"`
	Timeout Duration `yaml:"timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Events   LogSettings `yaml:"events"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path     string `yaml:"path"`
	Contacts string `yaml:"contacts_csv"` // offline seed for the emergency contacts
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/device.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:     "./data/ocular.db",
			Contacts: "./data/contacts.csv",
		},
		Server: ServerConfig{
			Enabled: true,
			Address: "localhost:1920",
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(15 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(10 * time.Second),
			},
		},
		Ticker: TickerConfig{
			Loop: Duration(250 * time.Millisecond),
		},
		Device: DeviceConfig{
			Provider:       "hardware",
			I2CBus:         "1",
			CompassAddress: 0x0D,
			GPSPort:        "/dev/serial0",
			GPSBaud:        9600,
			ControlPin:     "GPIO27",
			EmergencyPin:   "GPIO17",
			MotorPin:       "GPIO18",
			MotorFrequency: 100,
			Mock: MockDeviceConfig{
				StartLat:     12.9716,
				StartLon:     77.5946,
				StartHeading: 0,
				TurnRate:     30,
				WalkSpeed:    1.3,
				FixDelay:     Duration(2 * time.Second),
			},
		},
		Align: AlignConfig{
			Tolerance:         8,
			SampleInterval:    Duration(100 * time.Millisecond),
			MaxIntensity:      20,
			CircularError:     true,
			MaxSensorFailures: 10,
		},
		Route: RouteConfig{
			ArrivalRadius: Distance(8.5),
			PollInterval:  Duration(1 * time.Second),
		},
		Emergency: EmergencyConfig{
			InitialThreshold:   0,
			Increment:          100,
			IncrementInterval:  Duration(30 * time.Second),
			MaxThreshold:       2500,
			PollInterval:       Duration(1 * time.Second),
			HelperPollInterval: Duration(5 * time.Second),
			MapsLinkFormat:     "https://maps.google.com/?q=%.6f,%.6f",
		},
		NoMotion: NoMotionConfig{
			Enabled:         true,
			ChangeThreshold: 5,
			Window:          Duration(30 * time.Minute),
			SampleInterval:  Duration(1 * time.Second),
			Rearm:           true,
		},
		Buttons: ButtonsConfig{
			TripleWindow:    Duration(1 * time.Second),
			Cooldown:        Duration(30 * time.Second),
			LongPress:       Duration(2 * time.Second),
			Debounce:        Duration(50 * time.Millisecond),
			ControlPoll:     Duration(50 * time.Millisecond),
			ControlDebounce: Duration(200 * time.Millisecond),
		},
		Commands: CommandsConfig{
			Cutoff: 0.4,
		},
		Location: LocationConfig{
			Interval:             Duration(6 * time.Second),
			MinMove:              Distance(3),
			Heartbeat:            Duration(60 * time.Second),
			H3Resolution:         12,
			FollowRemoteLanguage: true,
		},
		Remote: RemoteConfig{
			Provider:   "firestore",
			Collection: "devices",
		},
		SMS: SMSConfig{
			Provider: "twilio",
		},
		Maps: MapsConfig{
			Mode: "walking",
		},
		Speech: SpeechConfig{
			Language:       "en",
			Voice:          "en-US-Standard-C",
			RecordDuration: Duration(4 * time.Second),
			RecordCommand:  "arecord",
			SampleRate:     16000,
			CacheDir:       "./data/speech",
		},
		Vision: VisionConfig{
			Model:  "gemini-2.5-flash",
			Prompt: "I am visually impaired. Please provide concise guidance in under 50 words and issue warnings only if there is a safety or critical concern.",
		},
		Audio: AudioConfig{
			AssetsDir: "./assets",
		},
		Camera: CameraConfig{
			Command: "rpicam-still",
			Output:  "./data/capture.jpg",
			Timeout: Duration(10 * time.Second),
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Secrets are taken from the environment (and a .env file next to the binary) when the file leaves them empty.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&cfg.Vision.Key, "GEMINI_API_KEY")
	fill(&cfg.Maps.Key, "GMAPS_API_KEY")
	fill(&cfg.Speech.TranslateKey, "TRANSLATE_API_KEY")
	fill(&cfg.Speech.TTSKey, "TEXT_TO_SPEECH_KEY")
	fill(&cfg.Speech.STTKey, "SPEECH_TO_TEXT_KEY")
	fill(&cfg.SMS.AccountSID, "SMS_ACCOUNT_SID")
	fill(&cfg.SMS.AuthToken, "SMS_AUTH_TOKEN")
	fill(&cfg.SMS.ServiceID, "SMS_SERVICE_ID")
	fill(&cfg.Remote.CredentialsFile, "FIREBASE_CRED_FILE_PATH")
	fill(&cfg.Remote.ProjectID, "FIREBASE_PROJECT_ID")
	fill(&cfg.Remote.DeviceID, "RPI_DEV_ID")
}

var reLanguage = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// Validate rejects settings the device cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Align.Tolerance <= 0 || c.Align.Tolerance > 180 {
		errs = append(errs, fmt.Errorf("align.tolerance_deg must be in (0,180], got %v", c.Align.Tolerance))
	}
	if c.Align.MaxIntensity <= 0 || c.Align.MaxIntensity > 100 {
		errs = append(errs, fmt.Errorf("align.max_intensity must be in (0,100], got %v", c.Align.MaxIntensity))
	}
	if c.Emergency.MaxThreshold < c.Emergency.InitialThreshold {
		errs = append(errs, fmt.Errorf("emergency.max_threshold (%d) below initial_threshold (%d)", c.Emergency.MaxThreshold, c.Emergency.InitialThreshold))
	}
	if c.Emergency.Increment <= 0 {
		errs = append(errs, errors.New("emergency.increment must be positive"))
	}
	if c.Route.ArrivalRadius <= 0 {
		errs = append(errs, errors.New("route.arrival_radius must be positive"))
	}
	if c.Commands.Cutoff < 0 || c.Commands.Cutoff > 1 {
		errs = append(errs, fmt.Errorf("commands.cutoff must be in [0,1], got %v", c.Commands.Cutoff))
	}
	for name, d := range map[string]Duration{
		"ticker.loop":                    c.Ticker.Loop,
		"align.sample_interval":          c.Align.SampleInterval,
		"route.poll_interval":            c.Route.PollInterval,
		"emergency.increment_interval":   c.Emergency.IncrementInterval,
		"emergency.poll_interval":        c.Emergency.PollInterval,
		"emergency.helper_poll_interval": c.Emergency.HelperPollInterval,
		"no_motion.window":               c.NoMotion.Window,
		"no_motion.sample_interval":      c.NoMotion.SampleInterval,
		"buttons.triple_window":          c.Buttons.TripleWindow,
		"buttons.long_press":             c.Buttons.LongPress,
		"location.interval":              c.Location.Interval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	switch c.Device.Provider {
	case "hardware", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown device.provider %q", c.Device.Provider))
	}
	switch c.Remote.Provider {
	case "firestore", "local":
	default:
		errs = append(errs, fmt.Errorf("unknown remote.provider %q", c.Remote.Provider))
	}
	switch c.SMS.Provider {
	case "twilio", "log":
	default:
		errs = append(errs, fmt.Errorf("unknown sms.provider %q", c.SMS.Provider))
	}
	if !reLanguage.MatchString(c.Speech.Language) {
		errs = append(errs, fmt.Errorf("invalid speech.language %q: must be 'xx' or 'xx-YY'", c.Speech.Language))
	}
	return errors.Join(errs...)
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Ocular Device Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)
# Secrets left empty are read from the environment (.env supported).

`)
	data = append(header, data...)

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider: (hardware|mock)`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: hardware, mock\n${1}provider: ${2}"))

	reCircular := regexp.MustCompile(`(?m)^(\s+)circular_error:`)
	data = reCircular.ReplaceAll(data, []byte("${1}# false measures |target-heading| without wrapping at 360\n${1}circular_error:"))

	reRearm := regexp.MustCompile(`(?m)^(\s+)rearm:`)
	data = reRearm.ReplaceAll(data, []byte("${1}# false fires at most once per process lifetime\n${1}rearm:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
