// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

// Package config loads service configuration from an optional YAML file
// overlaid with command-line flags. Flags win over the file, and the
// file wins over built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full service configuration.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string. Required.
	DatabaseURL string `koanf:"database_url"`

	// MetricsAddr is the metrics/health HTTP listen address. Empty
	// disables the observability server.
	MetricsAddr string `koanf:"metrics_addr"`

	LogFormat string `koanf:"log_format"`
	LogLevel  string `koanf:"log_level"`

	Processor ProcessorConfig `koanf:"processor"`
	Limits    LimitsConfig    `koanf:"limits"`
}

// ProcessorConfig tunes the background delete-operation processor.
type ProcessorConfig struct {
	PollingIntervalMS int `koanf:"polling_interval_ms"`
	MaxBatchSize      int `koanf:"max_batch_size"`
	Workers           int `koanf:"workers"`

	// RetryAfterSeconds is surfaced to clients polling a failed
	// operation. It does not trigger automatic retries.
	RetryAfterSeconds int `koanf:"retry_after_seconds"`
}

// LimitsConfig bounds the load one user or one cascade can generate.
type LimitsConfig struct {
	MaxConcurrentPerUserPerWorld int     `koanf:"max_concurrent_per_user_per_world"`
	RateLimitPerSecond           float64 `koanf:"rate_limit_per_second"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		MetricsAddr: "127.0.0.1:9100",
		LogFormat:   "json",
		LogLevel:    "info",
		Processor: ProcessorConfig{
			PollingIntervalMS: 5000,
			MaxBatchSize:      20,
			Workers:           4,
			RetryAfterSeconds: 30,
		},
		Limits: LimitsConfig{
			MaxConcurrentPerUserPerWorld: 3,
			RateLimitPerSecond:           100,
		},
	}
}

// flagKeys maps command-line flag names to config keys. Flags not
// listed here map by replacing dashes with underscores.
var flagKeys = map[string]string{
	"polling-interval-ms":               "processor.polling_interval_ms",
	"max-batch-size":                    "processor.max_batch_size",
	"workers":                           "processor.workers",
	"retry-after-seconds":               "processor.retry_after_seconds",
	"max-concurrent-per-user-per-world": "limits.max_concurrent_per_user_per_world",
	"rate-limit-per-second":             "limits.rate_limit_per_second",
}

// Load builds a Config from defaults, an optional YAML file, and an
// optional flag set, in increasing order of precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.With("path", path).Wrapf(err, "load config file")
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Wrapf(err, "load flags")
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Wrapf(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	if c.Processor.PollingIntervalMS <= 0 {
		return fmt.Errorf("processor.polling_interval_ms must be positive, got %d", c.Processor.PollingIntervalMS)
	}
	if c.Processor.MaxBatchSize <= 0 {
		return fmt.Errorf("processor.max_batch_size must be positive, got %d", c.Processor.MaxBatchSize)
	}
	if c.Processor.Workers <= 0 {
		return fmt.Errorf("processor.workers must be positive, got %d", c.Processor.Workers)
	}
	if c.Processor.RetryAfterSeconds < 0 {
		return fmt.Errorf("processor.retry_after_seconds must not be negative, got %d", c.Processor.RetryAfterSeconds)
	}
	if c.Limits.MaxConcurrentPerUserPerWorld < 0 {
		return fmt.Errorf("limits.max_concurrent_per_user_per_world must not be negative, got %d", c.Limits.MaxConcurrentPerUserPerWorld)
	}
	if c.Limits.RateLimitPerSecond < 0 {
		return fmt.Errorf("limits.rate_limit_per_second must not be negative, got %g", c.Limits.RateLimitPerSecond)
	}
	return nil
}

// PollingInterval returns the processor polling interval as a duration.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.Processor.PollingIntervalMS) * time.Millisecond
}
