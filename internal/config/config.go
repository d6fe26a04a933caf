// Package config loads service configuration from an optional YAML file with
// environment variable overrides. Backend credentials (DynamoDB, Postgres,
// S3) stay with their packages; this covers process-level wiring.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-level service configuration.
type Config struct {
	// DurableDriver selects the durable backend adapter: dynamo|postgres|none.
	DurableDriver string `yaml:"durable_driver"`
	// FallbackDriver selects the fallback store: memory|sqlite.
	FallbackDriver string `yaml:"fallback_driver"`
	// DisableDurable skips the durable backend entirely.
	DisableDurable bool `yaml:"disable_durable"`
	// ForceFallback pins the facade to the fallback store.
	ForceFallback bool `yaml:"force_fallback"`
	// ScanInterval is how often the auto-complete scan runs.
	ScanInterval time.Duration `yaml:"scan_interval"`
	// CompleteAfter is how long a picked-up order may wait before the scan
	// marks it delivered.
	CompleteAfter time.Duration `yaml:"complete_after"`
	// MetricsAddr is the listen address of the metrics endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
	// LogLevel is debug|info|warn|error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DurableDriver:  "dynamo",
		FallbackDriver: "memory",
		ScanInterval:   10 * time.Minute,
		CompleteAfter:  30 * time.Minute,
		MetricsAddr:    ":9090",
		LogLevel:       "info",
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// ORDERCORE_CONFIG when set, then ORDERCORE_* environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("ORDERCORE_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ORDERCORE_DURABLE_DRIVER"); v != "" {
		c.DurableDriver = v
	}
	if v := os.Getenv("ORDERCORE_FALLBACK_DRIVER"); v != "" {
		c.FallbackDriver = v
	}
	if v := os.Getenv("ORDERCORE_DISABLE_DURABLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ORDERCORE_DISABLE_DURABLE: %w", err)
		}
		c.DisableDurable = b
	}
	if v := os.Getenv("ORDERCORE_FORCE_FALLBACK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ORDERCORE_FORCE_FALLBACK: %w", err)
		}
		c.ForceFallback = b
	}
	if v := os.Getenv("ORDERCORE_SCAN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ORDERCORE_SCAN_INTERVAL: %w", err)
		}
		c.ScanInterval = d
	}
	if v := os.Getenv("ORDERCORE_COMPLETE_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ORDERCORE_COMPLETE_AFTER: %w", err)
		}
		c.CompleteAfter = d
	}
	if v := os.Getenv("ORDERCORE_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("ORDERCORE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c *Config) validate() error {
	switch c.DurableDriver {
	case "dynamo", "postgres", "none":
	default:
		return fmt.Errorf("unknown durable driver %q", c.DurableDriver)
	}
	switch c.FallbackDriver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown fallback driver %q", c.FallbackDriver)
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan interval must be positive, got %s", c.ScanInterval)
	}
	if c.CompleteAfter <= 0 {
		return fmt.Errorf("complete-after must be positive, got %s", c.CompleteAfter)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Logger builds a JSON slog logger at the configured level.
func (c Config) Logger() *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
