package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"floodgate/pkg/limits"
	"floodgate/pkg/limits/storage"
)

// Source provides the partition statistics to be captured. *limits.Manager
// satisfies this interface.
type Source interface {
	Snapshot() []limits.PartitionStats
}

// Config configures the snapshot scheduler.
type Config struct {
	// Schedule is a standard cron expression controlling when snapshots are
	// captured, e.g. "*/5 * * * *" for every five minutes.
	Schedule string

	// Retention is how long snapshots are kept. Snapshots older than this
	// are deleted after each capture. Zero disables pruning.
	Retention time.Duration
}

// Scheduler captures limiter statistics on a cron schedule and persists them
// through a storage backend.
type Scheduler struct {
	cfg     Config
	source  Source
	backend storage.Backend
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a new snapshot scheduler.
func NewScheduler(cfg Config, source Source, backend storage.Backend) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		source:  source,
		backend: backend,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "limits.snapshot"),
	}
}

// Start begins scheduled snapshot capture based on the cron expression.
//
// Common cron expressions:
//   - "*/5 * * * *" - Every 5 minutes
//   - "0 * * * *"   - Hourly
//   - "0 3 * * *"   - Daily at 3 AM
//
// If Schedule is empty, the scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Schedule == "" {
		s.logger.Info("snapshot schedule not configured, skipping scheduler")
		return nil
	}

	// Validate cron expression
	if _, err := cron.ParseStandard(s.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.cfg.Schedule, err)
	}

	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.capture(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule snapshots: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("snapshot scheduler started",
		"schedule", s.cfg.Schedule,
		"retention", s.cfg.Retention,
	)

	// Wait for context cancellation in background
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// capture executes one snapshot cycle: persist current statistics, then prune
// snapshots past retention.
func (s *Scheduler) capture(ctx context.Context) {
	stats := s.source.Snapshot()
	if len(stats) > 0 {
		now := time.Now()
		snapshots := make([]*storage.Snapshot, 0, len(stats))
		for _, ps := range stats {
			snapshots = append(snapshots, &storage.Snapshot{
				Policy:           ps.Policy,
				Partition:        ps.Partition,
				AvailablePermits: ps.Stats.AvailablePermits,
				SuccessfulLeases: ps.Stats.SuccessfulLeases,
				FailedLeases:     ps.Stats.FailedLeases,
				CapturedAt:       now,
			})
		}

		if err := s.backend.Save(ctx, snapshots); err != nil {
			s.logger.Error("snapshot capture failed",
				"error", err,
			)
			return
		}

		s.logger.Debug("snapshot capture completed",
			"partitions", len(snapshots),
		)
	}

	if s.cfg.Retention > 0 {
		deleted, err := s.backend.Cleanup(ctx, time.Now().Add(-s.cfg.Retention))
		if err != nil {
			s.logger.Error("snapshot pruning failed",
				"error", err,
			)
			return
		}
		if deleted > 0 {
			s.logger.Info("snapshot pruning completed",
				"deleted_count", deleted,
			)
		}
	}
}

// Stop stops the scheduler and waits for any running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done() // Wait for running jobs to finish
		s.running = false
		s.logger.Info("snapshot scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled capture time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}
