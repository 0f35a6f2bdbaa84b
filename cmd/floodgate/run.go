package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"floodgate/pkg/cli"
	"floodgate/pkg/config"
	"floodgate/pkg/limits"
	"floodgate/pkg/limits/snapshot"
	"floodgate/pkg/limits/storage"
	"floodgate/pkg/server"
	"floodgate/pkg/telemetry/logging"
	"floodgate/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Floodgate gateway",
	Long: `Start the Floodgate gateway with the specified configuration.

The gateway listens on the configured address, admits requests through the
configured rate-limit policies, and forwards admitted requests upstream.
Configuration changes are picked up without a restart.

Examples:
  # Start with default config
  floodgate run

  # Start with custom config
  floodgate run --config /etc/floodgate/floodgate.yaml

  # Override listen address
  floodgate run --listen 0.0.0.0:8080

  # Validate config without starting the gateway
  floodgate run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Floodgate v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Build policies and the limits manager
	policies, err := limits.BuildPolicies(cfg.Limits.Policies)
	if err != nil {
		return fmt.Errorf("failed to build policies: %w", err)
	}

	var collector *metrics.Collector

	manager := limits.NewManager(policies, limits.ManagerConfig{
		Store: limits.StoreConfig{
			IdleTimeout: cfg.Limits.IdleTimeout.Std(),
			OnEvict: func(policy, partition string) {
				if collector != nil {
					collector.RecordEviction(policy)
				}
			},
		},
	})
	defer manager.Close()

	collector = metrics.NewCollector(metrics.Config{
		Namespace: cfg.Metrics.Namespace,
		Subsystem: cfg.Metrics.Subsystem,
	}, nil, manager.Store().Len)

	fmt.Printf("✓ Policies loaded (%d policies)\n", len(policies))

	ctx := cli.SetupSignalHandler()

	// Snapshot persistence
	backend, err := newStorageBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	scheduler := snapshot.NewScheduler(snapshot.Config{
		Schedule:  cfg.Storage.SnapshotSchedule,
		Retention: cfg.Storage.Retention.Std(),
	}, manager, backend)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start snapshot scheduler: %w", err)
	}
	defer scheduler.Stop()

	if scheduler.IsRunning() {
		fmt.Printf("✓ Snapshot scheduler started (%s backend)\n", cfg.Storage.Backend)
	}

	// Config hot reload: rebuild policies on every valid change. Invalid
	// files are rejected by the watcher and the running set stays active.
	watcher, err := config.NewWatcher(cfgFile, func(next *config.Config) {
		rebuilt, buildErr := limits.BuildPolicies(next.Limits.Policies)
		if buildErr != nil {
			slog.Warn("rejecting reloaded policies", "error", buildErr)
			return
		}
		manager.SetPolicies(rebuilt)
		slog.Info("policies replaced", "policies", len(rebuilt))
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	defer watcher.Stop()

	srv, err := server.New(cfg, manager, collector)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Printf("✓ Gateway listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until a signal arrives or the listener fails.
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	fmt.Println("✓ Gateway stopped")
	return nil
}

// newStorageBackend constructs the snapshot backend selected by the config.
func newStorageBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case config.StorageSQLite:
		backend, err := storage.NewSQLiteBackend(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		return backend, nil
	case config.StorageMemory, "":
		return storage.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}
