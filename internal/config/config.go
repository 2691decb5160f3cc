// Package config handles TOML configuration for awsexport.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// DefaultRoot is the directory export sessions are created under.
const DefaultRoot = "exports"

// Config is the root configuration structure.
type Config struct {
	AWS     AWSConfig     `toml:"aws"`
	Export  ExportConfig  `toml:"export"`
	OTEL    OTELConfig    `toml:"otel"`
	Metrics MetricsConfig `toml:"metrics"`
	Log     LogConfig     `toml:"log"`
}

// AWSConfig holds AWS client settings. Empty values defer to the SDK's
// ambient configuration.
type AWSConfig struct {
	Region      string `toml:"region"`
	Profile     string `toml:"profile"`
	MaxAttempts int    `toml:"max_attempts"`
}

// ExportConfig holds export output settings.
type ExportConfig struct {
	Root string `toml:"root"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string            `toml:"endpoint"`
	Insecure    bool              `toml:"insecure"`
	ServiceName string            `toml:"service_name"`
	Traces      TracesConfig      `toml:"traces"`
	Metrics     OTELMetricsConfig `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate float64 `toml:"sample_rate"`
}

// OTELMetricsConfig holds OTLP metrics settings.
type OTELMetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// MetricsConfig holds Prometheus textfile settings.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultSampleRate samples every trace unless the file sets a rate.
const DefaultSampleRate = 1.0

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := newConfig()
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := newConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// newConfig presets values where zero is a legal setting, so only an
// absent key falls back to the default.
func newConfig() *Config {
	cfg := &Config{}
	cfg.OTEL.Traces.SampleRate = DefaultSampleRate
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Export.Root == "" {
		cfg.Export.Root = DefaultRoot
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "awsexport"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.AWS.MaxAttempts < 0 {
		return fmt.Errorf("aws: max_attempts must not be negative (got %d)", c.AWS.MaxAttempts)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: invalid level %q: %w", c.Log.Level, err)
	}
	if c.Metrics.Textfile != "" && within(c.Export.Root, c.Metrics.Textfile) {
		return fmt.Errorf("metrics: textfile %q must not be inside export root %q", c.Metrics.Textfile, c.Export.Root)
	}
	return nil
}

// within reports whether path lies under dir.
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
