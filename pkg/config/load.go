package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults, and validates configuration from a YAML file.
// Environment variables are not consulted; use LoadWithEnvOverrides for
// that.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithEnvOverrides loads a YAML file and then applies FLOODGATE_*
// environment overrides. Environment variables always take precedence over
// the file. The final configuration is re-validated.
func LoadWithEnvOverrides(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies FLOODGATE_SECTION_FIELD environment variables.
// Policies are file-only; the env surface covers scalar runtime knobs.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("FLOODGATE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("FLOODGATE_SERVER_UPSTREAM"); val != "" {
		cfg.Server.Upstream = val
	}
	if d, ok := envDuration("FLOODGATE_SERVER_READ_TIMEOUT"); ok {
		cfg.Server.ReadTimeout = d
	}
	if d, ok := envDuration("FLOODGATE_SERVER_WRITE_TIMEOUT"); ok {
		cfg.Server.WriteTimeout = d
	}
	if d, ok := envDuration("FLOODGATE_SERVER_SHUTDOWN_TIMEOUT"); ok {
		cfg.Server.ShutdownTimeout = d
	}

	if val := os.Getenv("FLOODGATE_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("FLOODGATE_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv("FLOODGATE_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}

	if d, ok := envDuration("FLOODGATE_LIMITS_IDLE_TIMEOUT"); ok {
		cfg.Limits.IdleTimeout = d
	}

	if val := os.Getenv("FLOODGATE_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("FLOODGATE_STORAGE_PATH"); val != "" {
		cfg.Storage.Path = val
	}
}

func envDuration(name string) (Duration, bool) {
	val := os.Getenv(name)
	if val == "" {
		return 0, false
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, false
	}
	return Duration(d), true
}
