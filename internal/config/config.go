package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/petems/instant-replay/internal/command"
	"github.com/petems/instant-replay/internal/session"
	"github.com/spf13/viper"
)

const appName = "instant-replay"

type Config struct {
	CaptureDeviceIndex     int                 `mapstructure:"capture_device_index" json:"capture_device_index" validate:"gte=0"`
	CaptureDurationSeconds float64             `mapstructure:"capture_duration_seconds" json:"capture_duration_seconds" validate:"gt=0"`
	CaptureFPS             float64             `mapstructure:"capture_fps" json:"capture_fps" validate:"gt=0"`
	CaptureMaxFrames       int                 `mapstructure:"capture_max_frames" json:"capture_max_frames" validate:"gte=0"`
	TriggerVocabulary      map[string][]string `mapstructure:"trigger_vocabulary" json:"trigger_vocabulary,omitempty"`
	SpeedStepFactor        float64             `mapstructure:"speed_step_factor" json:"speed_step_factor" validate:"gt=1"`
	InitialSpeed           float64             `mapstructure:"initial_speed" json:"initial_speed" validate:"gt=0"`
	MinSpeed               float64             `mapstructure:"min_speed" json:"min_speed" validate:"gte=0"`
	MaxSpeed               float64             `mapstructure:"max_speed" json:"max_speed" validate:"gte=0"`
	BargeInRearm           bool                `mapstructure:"barge_in_rearm" json:"barge_in_rearm"`
	AutoLoop               bool                `mapstructure:"auto_loop" json:"auto_loop"`
	ConfirmationCue        string              `mapstructure:"confirmation_cue" json:"confirmation_cue"`
	MaxReadFailures        int                 `mapstructure:"max_read_failures" json:"max_read_failures" validate:"gte=1"`
	MinTickMS              int                 `mapstructure:"min_tick_ms" json:"min_tick_ms" validate:"gte=0"`
	QuitHotkey             string              `mapstructure:"quit_hotkey" json:"quit_hotkey"`
	ShowTray               bool                `mapstructure:"show_tray" json:"show_tray"`
	LogLevel               string              `mapstructure:"log_level" json:"log_level" validate:"oneof=trace debug info warn error"`
	Audio                  AudioConfig         `mapstructure:"audio" json:"audio"`
	Whisper                WhisperConfig       `mapstructure:"whisper" json:"whisper"`

	path string
}

type AudioConfig struct {
	DeviceID string `mapstructure:"device_id" json:"device_id"`
}

type WhisperConfig struct {
	Model        string `mapstructure:"model" json:"model" validate:"required"` // "base.en", "small", etc.
	Language     string `mapstructure:"language" json:"language"`               // "auto", "en", etc.
	Threads      int    `mapstructure:"threads" json:"threads" validate:"gte=0"`
	AutoDownload bool   `mapstructure:"auto_download" json:"auto_download"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("capture_device_index", 0)
	v.SetDefault("capture_duration_seconds", 6.0)
	v.SetDefault("capture_fps", 30.0)
	v.SetDefault("capture_max_frames", 0)
	v.SetDefault("speed_step_factor", session.DefaultSpeedStep)
	v.SetDefault("initial_speed", 1.0)
	v.SetDefault("min_speed", 0.0)
	v.SetDefault("max_speed", 0.0)
	v.SetDefault("barge_in_rearm", true)
	v.SetDefault("auto_loop", false)
	v.SetDefault("confirmation_cue", "")
	v.SetDefault("max_read_failures", 30)
	v.SetDefault("min_tick_ms", 1)
	v.SetDefault("quit_hotkey", "Ctrl+Shift+Q")
	v.SetDefault("show_tray", true)
	v.SetDefault("log_level", "info")

	v.SetDefault("audio.device_id", "")

	v.SetDefault("whisper.model", "base.en")
	v.SetDefault("whisper.language", "auto")
	v.SetDefault("whisper.threads", 0) // Auto-detect
	v.SetDefault("whisper.auto_download", true)
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	return LoadFrom(configPath())
}

// LoadFrom reads the config at path. A missing file yields defaults.
// REPLAY_* environment variables override file values, with nested keys
// joined by an underscore (REPLAY_WHISPER_MODEL).
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("REPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.MinSpeed > 0 && c.MaxSpeed > 0 && c.MinSpeed > c.MaxSpeed {
		return fmt.Errorf("invalid config: min_speed %.2f exceeds max_speed %.2f", c.MinSpeed, c.MaxSpeed)
	}
	if _, err := c.Vocabulary(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = configPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	if c.path == "" {
		return configPath()
	}
	return c.path
}

// Vocabulary returns the configured trigger phrases, or the English
// defaults when none are configured.
func (c *Config) Vocabulary() (command.Vocabulary, error) {
	if len(c.TriggerVocabulary) == 0 {
		return command.DefaultVocabulary(), nil
	}
	return command.ParseVocabulary(c.TriggerVocabulary)
}

func (c *Config) CaptureDuration() time.Duration {
	return time.Duration(c.CaptureDurationSeconds * float64(time.Second))
}

func (c *Config) MinTick() time.Duration {
	return time.Duration(c.MinTickMS) * time.Millisecond
}

func (c *Config) SpeedLimits() session.SpeedLimits {
	return session.SpeedLimits{
		Step: c.SpeedStepFactor,
		Min:  c.MinSpeed,
		Max:  c.MaxSpeed,
	}
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.json")
}

// ModelsPath returns the platform-specific models directory path
func ModelsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName, "models")
}
