// Package config loads the podwatch YAML configuration. Missing fields fall
// back to defaults declared on the struct tags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string        `yaml:"log_level" default:"info"`
	Adapter  AdapterConfig `yaml:"adapter"`
	Scan     ScanConfig    `yaml:"scan"`
}

// AdapterConfig selects the Bluetooth adapter to watch.
type AdapterConfig struct {
	// Path is the BlueZ object path of the adapter.
	Path string `yaml:"path" default:"/org/bluez/hci0"`
}

// ScanConfig tunes the scan session. Intervals are plain milliseconds so the
// YAML stays free of format quirks.
type ScanConfig struct {
	// WindowMs bounds each platform scan call.
	WindowMs int `yaml:"window_ms" default:"4000"`
	// RestartIntervalMs is the auto-restart cadence; must stay shorter
	// than the window so advertisement delivery never gaps.
	RestartIntervalMs int `yaml:"restart_interval_ms" default:"3000"`
	// AllowDuplicates asks the platform for repeat advertisements.
	AllowDuplicates bool `yaml:"allow_duplicates" default:"true"`
	// AllowList restricts ingestion to these device addresses.
	AllowList []string `yaml:"allow_list"`
}

// Window returns the per-call scan window as a duration.
func (c ScanConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// RestartInterval returns the auto-restart cadence as a duration.
func (c ScanConfig) RestartInterval() time.Duration {
	return time.Duration(c.RestartIntervalMs) * time.Millisecond
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Adapter.Path == "" {
		return fmt.Errorf("adapter.path must not be empty")
	}

	if c.Scan.WindowMs <= 0 {
		return fmt.Errorf("scan.window_ms must be > 0")
	}
	if c.Scan.RestartIntervalMs <= 0 {
		return fmt.Errorf("scan.restart_interval_ms must be > 0")
	}
	if c.Scan.RestartIntervalMs >= c.Scan.WindowMs {
		return fmt.Errorf("scan.restart_interval_ms (%d) must be smaller than scan.window_ms (%d)",
			c.Scan.RestartIntervalMs, c.Scan.WindowMs)
	}

	return nil
}
