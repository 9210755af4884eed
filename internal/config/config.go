package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration for TOML decoding of values like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Pipeline holds the ingestion policy windows. These are empirical operational
// constants, not mechanism, which is why they live in config rather than code.
type Pipeline struct {
	// DedupWindow is how close in time two identical messages for one lead
	// must be to count as a redelivery.
	DedupWindow Duration `toml:"dedup_window"`
	// HistoryMaxAge is the oldest a backlog-replayed ("append") event may be
	// and still enter the log. Live events are never age-gated.
	HistoryMaxAge Duration `toml:"history_max_age"`
	// SubscriberGrace is subtracted from a subscriber's attach time before it
	// treats a delivered message as new, tolerating producer clock skew.
	SubscriberGrace Duration `toml:"subscriber_grace"`
}

// Server holds the dashboard-facing HTTP listener settings.
type Server struct {
	Listen string `toml:"listen"`
}

// Config represents the global ~/.leadflow/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	Server         Server   `toml:"server"`
	Pipeline       Pipeline `toml:"pipeline"`
}

// Default returns the config with all defaults applied.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Server:         Server{Listen: "127.0.0.1:8970"},
		Pipeline: Pipeline{
			DedupWindow:     Duration{30 * time.Second},
			HistoryMaxAge:   Duration{5 * time.Minute},
			SubscriberGrace: Duration{5 * time.Second},
		},
	}
}

// Load reads config from the given path, applying defaults for unset values.
// Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault reads config from the given path, falling back to defaults if
// the file does not exist.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.DefaultSession == "" {
		c.DefaultSession = def.DefaultSession
	}
	if c.Server.Listen == "" {
		c.Server.Listen = def.Server.Listen
	}
	if c.Pipeline.DedupWindow.Duration <= 0 {
		c.Pipeline.DedupWindow = def.Pipeline.DedupWindow
	}
	if c.Pipeline.HistoryMaxAge.Duration <= 0 {
		c.Pipeline.HistoryMaxAge = def.Pipeline.HistoryMaxAge
	}
	if c.Pipeline.SubscriberGrace.Duration <= 0 {
		c.Pipeline.SubscriberGrace = def.Pipeline.SubscriberGrace
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
