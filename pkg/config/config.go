package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported rate-limiting algorithms.
const (
	AlgorithmTokenBucket   = "token_bucket"
	AlgorithmFixedWindow   = "fixed_window"
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmConcurrency   = "concurrency"
)

// Supported partition-key sources.
const (
	PartitionByClientIP = "client_ip"
	PartitionByHeader   = "header"
	PartitionByPath     = "path"
	PartitionByGlobal   = "global"
)

// Supported storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or "5m" as well as from integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case int:
		*d = Duration(v)
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration for the Floodgate gateway.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Limits  LimitsConfig  `yaml:"limits"`
	Storage StorageConfig `yaml:"storage"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	// ListenAddress is the host:port the gateway binds to.
	ListenAddress string `yaml:"listen_address"`

	// Upstream is the base URL requests are proxied to after admission.
	Upstream string `yaml:"upstream"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes.
	WriteTimeout Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled mounts the metrics endpoint when true.
	Enabled bool `yaml:"enabled"`

	// Namespace and Subsystem prefix every metric name.
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`

	// Path is where the metrics handler is mounted.
	Path string `yaml:"path"`
}

// LimitsConfig configures the partitioned rate limiter.
type LimitsConfig struct {
	// IdleTimeout is how long a partition may go unaccessed before its
	// limiter is evicted.
	IdleTimeout Duration `yaml:"idle_timeout"`

	// Policies are evaluated in order for every request.
	Policies []PolicyConfig `yaml:"policies"`
}

// PolicyConfig describes one rate-limit policy.
type PolicyConfig struct {
	// Name identifies the policy in headers, metrics, and store keys.
	Name string `yaml:"name"`

	// Algorithm selects the limiter: token_bucket, fixed_window,
	// sliding_window, or concurrency.
	Algorithm string `yaml:"algorithm"`

	// PermitLimit is the permits per window, or the cap for concurrency.
	PermitLimit int64 `yaml:"permit_limit"`

	// BurstLimit is the token bucket ceiling. Defaults to PermitLimit.
	BurstLimit int64 `yaml:"burst_limit"`

	// Window is the measurement period for time-windowed algorithms.
	Window Duration `yaml:"window"`

	// Segments divides a sliding window. Minimum 2.
	Segments int `yaml:"segments"`

	// PartitionBy selects the partition key source: client_ip, header,
	// path, or global.
	PartitionBy string `yaml:"partition_by"`

	// Header names the request header when PartitionBy is "header".
	Header string `yaml:"header"`
}

// StorageConfig configures statistics snapshot persistence.
type StorageConfig struct {
	// Backend is memory or sqlite.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file (sqlite backend only).
	Path string `yaml:"path"`

	// SnapshotSchedule is a cron expression for periodic snapshots.
	// Empty disables scheduled snapshots.
	SnapshotSchedule string `yaml:"snapshot_schedule"`

	// Retention is how long persisted snapshots are kept.
	Retention Duration `yaml:"retention"`
}
