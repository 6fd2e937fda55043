package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// OutputConfig selects the MIDI output port
type OutputConfig struct {
	// PortName is matched exactly, then as a case-insensitive substring.
	// Empty picks the first port.
	PortName string `json:"portName,omitempty"`
}

// SynthConfig enables the built-in SoundFont synth instead of a port
type SynthConfig struct {
	SoundFont  string `json:"soundFont,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// PlaybackConfig tunes the playback engine
type PlaybackConfig struct {
	SpinThresholdMS int  `json:"spinThresholdMs,omitempty"`
	AsyncChain      bool `json:"asyncChain,omitempty"`
}

// DecodeConfig tunes file decoding
type DecodeConfig struct {
	Workers int `json:"workers,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette string `json:"palette,omitempty"` // path to a GIMP .gpl palette
}

// Config is the main configuration structure
type Config struct {
	Output        OutputConfig   `json:"output,omitempty"`
	Synth         SynthConfig    `json:"synth,omitempty"`
	Playback      PlaybackConfig `json:"playback,omitempty"`
	Decode        DecodeConfig   `json:"decode,omitempty"`
	UI            UIConfig       `json:"ui,omitempty"`
	MutedChannels []int          `json:"mutedChannels,omitempty"` // 1-16
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Synth: SynthConfig{
			SampleRate: 44100,
		},
		Playback: PlaybackConfig{
			SpinThresholdMS: 5,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-smfplay"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. Fields missing from the file keep
// their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the player cannot use
func (c *Config) Validate() error {
	for _, ch := range c.MutedChannels {
		if ch < 1 || ch > 16 {
			return fmt.Errorf("muted channel %d out of range 1-16", ch)
		}
	}
	if c.Synth.SampleRate < 0 {
		return fmt.Errorf("negative sample rate %d", c.Synth.SampleRate)
	}
	if c.Playback.SpinThresholdMS < 0 {
		return fmt.Errorf("negative spin threshold %d", c.Playback.SpinThresholdMS)
	}
	if c.Decode.Workers < 0 {
		return fmt.Errorf("negative worker count %d", c.Decode.Workers)
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SpinThreshold returns the engine spin threshold
func (c *Config) SpinThreshold() time.Duration {
	return time.Duration(c.Playback.SpinThresholdMS) * time.Millisecond
}

// Muted returns the muted channels as zero-based channel numbers
func (c *Config) Muted() []uint8 {
	var out []uint8
	for _, ch := range c.MutedChannels {
		if ch >= 1 && ch <= 16 {
			out = append(out, uint8(ch-1))
		}
	}
	return out
}

// SetMuted records the muted channels, given zero-based
func (c *Config) SetMuted(channels []uint8) {
	c.MutedChannels = c.MutedChannels[:0]
	for _, ch := range channels {
		c.MutedChannels = append(c.MutedChannels, int(ch)+1)
	}
	sort.Ints(c.MutedChannels)
}
