// Package config loads murmur settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"murmur/kv"
)

var (
	ErrMissingCredential = errors.New("config: DEEPGRAM_API_KEY is not set")
	ErrInvalid           = errors.New("config: invalid value")
)

type DeepgramConfig struct {
	APIKey           string `yaml:"api_key"`
	Endpoint         string `yaml:"endpoint"`
	Model            string `yaml:"model"`
	Language         string `yaml:"language"`
	SmartFormat      bool   `yaml:"smart_format"`
	KeepAliveSeconds int    `yaml:"keepalive_seconds"`
}

type AudioConfig struct {
	Device   string `yaml:"device"`
	Gain     int    `yaml:"gain"`
	AutoStop bool   `yaml:"auto_stop"`
}

// HotkeyConfig controls the global Ctrl+Shift+Space binding. A tap toggles
// recording; holding longer than LongPressMS records until release.
type HotkeyConfig struct {
	Enabled     bool `yaml:"enabled"`
	LongPressMS int  `yaml:"long_press_ms"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type Config struct {
	Deepgram DeepgramConfig `yaml:"deepgram"`
	Audio    AudioConfig    `yaml:"audio"`
	Store    StoreConfig    `yaml:"store"`
	Hotkey   HotkeyConfig   `yaml:"hotkey"`
	Beeps    bool           `yaml:"beeps"`
	LogPath  string         `yaml:"log_path"`
}

func Default() Config {
	return Config{
		Deepgram: DeepgramConfig{
			Model:            "nova-2",
			Language:         "en-US",
			SmartFormat:      true,
			KeepAliveSeconds: 10,
		},
		Audio:  AudioConfig{Gain: 1},
		Store:  StoreConfig{Path: kv.DefaultPath()},
		Hotkey: HotkeyConfig{Enabled: true, LongPressMS: 400},
		Beeps:  true,
	}
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "murmur", "config.yaml")
}

// Load reads path (or DefaultPath if it exists when path is empty) and applies
// environment overrides. A missing credential is not an error here; see Validate.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err) && !explicit:
		case os.IsNotExist(err):
			return cfg, fmt.Errorf("config file not found: %w", err)
		default:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Deepgram.APIKey, "DEEPGRAM_API_KEY")
	overrideString(&cfg.Deepgram.Endpoint, "MURMUR_DEEPGRAM_ENDPOINT")
	overrideString(&cfg.Deepgram.Model, "MURMUR_MODEL")
	overrideString(&cfg.Deepgram.Language, "MURMUR_LANGUAGE")
	overrideBool(&cfg.Deepgram.SmartFormat, "MURMUR_SMART_FORMAT")
	overrideInt(&cfg.Deepgram.KeepAliveSeconds, "MURMUR_KEEPALIVE_SECONDS")
	overrideString(&cfg.Audio.Device, "MURMUR_DEVICE")
	overrideInt(&cfg.Audio.Gain, "MURMUR_GAIN")
	overrideBool(&cfg.Audio.AutoStop, "MURMUR_AUTO_STOP")
	overrideString(&cfg.Store.Path, "MURMUR_STORE_PATH")
	overrideBool(&cfg.Hotkey.Enabled, "MURMUR_HOTKEY")
	overrideInt(&cfg.Hotkey.LongPressMS, "MURMUR_LONG_PRESS_MS")
	overrideBool(&cfg.Beeps, "MURMUR_BEEPS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Deepgram.KeepAliveSeconds <= 0 {
		return fmt.Errorf("%w: deepgram.keepalive_seconds must be positive", ErrInvalid)
	}
	if cfg.Audio.Gain < 0 || cfg.Audio.Gain > 16 {
		return fmt.Errorf("%w: audio.gain must be between 0 and 16", ErrInvalid)
	}
	if cfg.Hotkey.LongPressMS <= 0 {
		return fmt.Errorf("%w: hotkey.long_press_ms must be positive", ErrInvalid)
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		return fmt.Errorf("%w: store.path must not be empty", ErrInvalid)
	}
	return nil
}

// Validate reports a missing API key. The app still runs without one; it just
// never connects.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Deepgram.APIKey) == "" {
		return ErrMissingCredential
	}
	return nil
}

func (c Config) KeepAlive() time.Duration {
	return time.Duration(c.Deepgram.KeepAliveSeconds) * time.Second
}

func (c Config) LongPress() time.Duration {
	return time.Duration(c.Hotkey.LongPressMS) * time.Millisecond
}
