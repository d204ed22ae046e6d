// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

// Package config defines the procmine-api server configuration.
package config

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/procmine/procmine/internal/config"
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	LLM     LLMConfig     `koanf:"llm"`
	Mining  MiningConfig  `koanf:"mining"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StoreConfig holds embedded store settings. An empty Path selects the
// per-user default location.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// LLMConfig holds enrichment provider settings.
type LLMConfig struct {
	ProviderURL   string        `koanf:"provider_url"`
	APIKey        string        `koanf:"api_key"`
	Model         string        `koanf:"model"`
	FallbackModel string        `koanf:"fallback_model"`
	Workers       int           `koanf:"workers"`
	QueueCapacity int           `koanf:"queue_capacity"`
	CacheSize     int           `koanf:"cache_size"`
	CacheTTL      time.Duration `koanf:"cache_ttl"`
	Timeout       time.Duration `koanf:"timeout"`
	LowThreshold  float64       `koanf:"low_threshold"`
	AutoThreshold float64       `koanf:"auto_threshold"`
}

// MiningConfig holds defaults for analysis jobs; per-request parameters
// override them.
type MiningConfig struct {
	MaxGapSeconds       float64 `koanf:"max_gap_seconds"`
	MinSupport          float64 `koanf:"min_support"`
	MinOccurrences      int     `koanf:"min_occurrences"`
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"`
	AddSource bool   `koanf:"add_source"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5600,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Model:         "claude-sonnet-4-5",
			Workers:       2,
			QueueCapacity: 256,
			CacheSize:     4096,
			CacheTTL:      24 * time.Hour,
			Timeout:       30 * time.Second,
			LowThreshold:  0.5,
			AutoThreshold: 0.8,
		},
		Mining: MiningConfig{
			MaxGapSeconds:       120,
			MinSupport:          0.1,
			MinOccurrences:      3,
			SimilarityThreshold: 0.8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// EnvAliases maps the flat legacy environment variables onto config keys.
func EnvAliases() map[string]string {
	return map[string]string{
		"STORE_PATH":         "store.path",
		"LLM_PROVIDER_URL":   "llm.provider_url",
		"LLM_API_KEY":        "llm.api_key",
		"LLM_MODEL":          "llm.model",
		"LLM_WORKERS":        "llm.workers",
		"LLM_QUEUE_CAPACITY": "llm.queue_capacity",
		"LOG_LEVEL":          "logging.level",
	}
}

// FlagMappings maps CLI flag names onto config keys.
func FlagMappings() map[string]string {
	return map[string]string{
		"port":       "server.port",
		"store-path": "store.path",
		"log-level":  "logging.level",
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// PROCMINE__* environment variables, the legacy flat env aliases and
// explicitly-set CLI flags, in increasing priority.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	loader := config.NewLoader("PROCMINE")
	if err := loader.LoadWithDefaults(Default(), configPath); err != nil {
		return nil, err
	}
	if err := loader.LoadEnvAliases(EnvAliases()); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := loader.LoadFlags(flags, FlagMappings()); err != nil {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := loader.UnmarshalAndValidate("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	var errs config.ValidationErrors

	server := config.NewPath("server")
	if e := config.MustBeInRange(server.Child("port"), c.Server.Port, 1, 65535); e != nil {
		errs = append(errs, e)
	}

	llm := config.NewPath("llm")
	if e := config.MustBePositive(llm.Child("workers"), c.LLM.Workers); e != nil {
		errs = append(errs, e)
	}
	if e := config.MustBePositive(llm.Child("queue_capacity"), c.LLM.QueueCapacity); e != nil {
		errs = append(errs, e)
	}
	if e := config.MustBeInRange(llm.Child("low_threshold"), c.LLM.LowThreshold, 0, 1); e != nil {
		errs = append(errs, e)
	}
	if e := config.MustBeInRange(llm.Child("auto_threshold"), c.LLM.AutoThreshold, 0, 1); e != nil {
		errs = append(errs, e)
	}
	if c.LLM.LowThreshold > c.LLM.AutoThreshold {
		errs = append(errs, config.Invalid(llm.Child("low_threshold"), "must not exceed llm.auto_threshold"))
	}

	mining := config.NewPath("mining")
	if e := config.MustBePositive(mining.Child("max_gap_seconds"), c.Mining.MaxGapSeconds); e != nil {
		errs = append(errs, e)
	}
	if e := config.MustBeInRange(mining.Child("min_support"), c.Mining.MinSupport, 0.0, 1.0); e != nil {
		errs = append(errs, e)
	}
	if e := config.MustBeInRange(mining.Child("similarity_threshold"), c.Mining.SimilarityThreshold, 0.0, 1.0); e != nil {
		errs = append(errs, e)
	}

	logPath := config.NewPath("logging")
	if e := config.MustBeOneOf(logPath.Child("level"), c.Logging.Level,
		[]string{"debug", "info", "warn", "error"}); e != nil {
		errs = append(errs, e)
	}
	if e := config.MustBeOneOf(logPath.Child("format"), c.Logging.Format,
		[]string{"json", "text"}); e != nil {
		errs = append(errs, e)
	}

	return errs.OrNil()
}
