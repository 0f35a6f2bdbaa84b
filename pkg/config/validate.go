package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "limits.policies[0].window").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration so a
// broken file can be fixed in one pass.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the entire configuration, returning a ValidationError
// listing every violated rule, or nil when the configuration is valid.
func Validate(cfg *Config) error {
	var errs []FieldError

	add := func(field, message string) {
		errs = append(errs, FieldError{Field: field, Message: message})
	}

	if cfg.Server.Upstream != "" {
		if u, err := url.Parse(cfg.Server.Upstream); err != nil || u.Scheme == "" || u.Host == "" {
			add("server.upstream", "must be an absolute URL")
		}
	}
	if cfg.Server.ReadTimeout < 0 {
		add("server.read_timeout", "must not be negative")
	}
	if cfg.Server.WriteTimeout < 0 {
		add("server.write_timeout", "must not be negative")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		add("logging.format", fmt.Sprintf("unknown format %q", cfg.Logging.Format))
	}

	if cfg.Limits.IdleTimeout <= 0 {
		add("limits.idle_timeout", "must be positive")
	}
	names := make(map[string]bool, len(cfg.Limits.Policies))
	for i, p := range cfg.Limits.Policies {
		prefix := fmt.Sprintf("limits.policies[%d]", i)
		validatePolicy(prefix, p, add)
		if p.Name != "" && names[p.Name] {
			add(prefix+".name", fmt.Sprintf("duplicate policy name %q", p.Name))
		}
		names[p.Name] = true
	}

	switch cfg.Storage.Backend {
	case StorageMemory:
	case StorageSQLite:
		if cfg.Storage.Path == "" {
			add("storage.path", "required for the sqlite backend")
		}
	default:
		add("storage.backend", fmt.Sprintf("unknown backend %q", cfg.Storage.Backend))
	}
	if cfg.Storage.Retention <= 0 {
		add("storage.retention", "must be positive")
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validatePolicy checks one policy entry. The numeric rules mirror the
// limiter constructors so a bad policy fails at load time instead of on the
// first request to a fresh partition.
func validatePolicy(prefix string, p PolicyConfig, add func(field, message string)) {
	if p.Name == "" {
		add(prefix+".name", "required")
	}

	if p.PermitLimit < 1 {
		add(prefix+".permit_limit", "must be at least 1")
	}

	switch p.Algorithm {
	case AlgorithmTokenBucket:
		if p.BurstLimit < 1 {
			add(prefix+".burst_limit", "must be at least 1")
		}
		if p.Window <= 0 {
			add(prefix+".window", "must be positive")
		}
	case AlgorithmFixedWindow:
		if p.Window <= 0 {
			add(prefix+".window", "must be positive")
		}
	case AlgorithmSlidingWindow:
		if p.Window <= 0 {
			add(prefix+".window", "must be positive")
		}
		if p.Segments < 2 {
			add(prefix+".segments", "must be at least 2")
		}
	case AlgorithmConcurrency:
	default:
		add(prefix+".algorithm", fmt.Sprintf("unknown algorithm %q", p.Algorithm))
	}

	switch p.PartitionBy {
	case PartitionByClientIP, PartitionByPath, PartitionByGlobal:
	case PartitionByHeader:
		if p.Header == "" {
			add(prefix+".header", "required when partition_by is header")
		}
	default:
		add(prefix+".partition_by", fmt.Sprintf("unknown partition source %q", p.PartitionBy))
	}
}
