package config

import "time"

// Default values applied to unset fields before validation.
const (
	DefaultListenAddress   = ":8090"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "floodgate"
	DefaultMetricsSubsystem = "gateway"
	DefaultMetricsPath      = "/metrics"

	DefaultLimiterIdleTimeout = 5 * time.Minute

	DefaultStorageBackend   = StorageMemory
	DefaultStorageRetention = 24 * time.Hour
)

// ApplyDefaults fills unset fields with their default values. It is called
// by Load before validation; calling it again is harmless.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = Duration(DefaultIdleTimeout)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Limits.IdleTimeout == 0 {
		cfg.Limits.IdleTimeout = Duration(DefaultLimiterIdleTimeout)
	}
	for i := range cfg.Limits.Policies {
		p := &cfg.Limits.Policies[i]
		if p.PartitionBy == "" {
			p.PartitionBy = PartitionByGlobal
		}
		if p.Algorithm == AlgorithmTokenBucket && p.BurstLimit == 0 {
			p.BurstLimit = p.PermitLimit
		}
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.Retention == 0 {
		cfg.Storage.Retention = Duration(DefaultStorageRetention)
	}
}
