package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// newTestBackends returns one instance of every backend implementation so
// contract tests run against each of them.
func newTestBackends(t *testing.T) map[string]Backend {
	t.Helper()

	sqlite, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}

	backends := map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": sqlite,
	}
	t.Cleanup(func() {
		for _, b := range backends {
			b.Close()
		}
	})
	return backends
}

func snap(policy, partition string, available, successes, failures int64, at time.Time) *Snapshot {
	return &Snapshot{
		Policy:           policy,
		Partition:        partition,
		AvailablePermits: available,
		SuccessfulLeases: successes,
		FailedLeases:     failures,
		CapturedAt:       at,
	}
}

// TestBackend_SaveAndLoadLatest verifies Load returns the most recent
// snapshot for a partition.
func TestBackend_SaveAndLoadLatest(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().Truncate(time.Second)

			err := backend.Save(ctx, []*Snapshot{
				snap("api", "10.0.0.1", 9, 1, 0, base),
				snap("api", "10.0.0.1", 5, 5, 2, base.Add(time.Minute)),
			})
			if err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			loaded, err := backend.Load(ctx, "api", "10.0.0.1")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded == nil {
				t.Fatal("Expected snapshot, got nil")
			}
			if loaded.AvailablePermits != 5 {
				t.Errorf("Expected available permits 5, got %d", loaded.AvailablePermits)
			}
			if loaded.SuccessfulLeases != 5 || loaded.FailedLeases != 2 {
				t.Errorf("Expected counters 5/2, got %d/%d", loaded.SuccessfulLeases, loaded.FailedLeases)
			}
			if !loaded.CapturedAt.Equal(base.Add(time.Minute)) {
				t.Errorf("Expected captured at %v, got %v", base.Add(time.Minute), loaded.CapturedAt)
			}
		})
	}
}

// TestBackend_LoadNonExistent verifies Load returns nil without error for an
// unknown partition.
func TestBackend_LoadNonExistent(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			loaded, err := backend.Load(context.Background(), "api", "nonexistent")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded != nil {
				t.Errorf("Expected nil for non-existent partition, got %v", loaded)
			}
		})
	}
}

// TestBackend_List verifies List returns the latest snapshot per partition,
// filtered by policy.
func TestBackend_List(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().Truncate(time.Second)

			err := backend.Save(ctx, []*Snapshot{
				snap("api", "10.0.0.1", 9, 1, 0, base),
				snap("api", "10.0.0.1", 8, 2, 0, base.Add(time.Second)),
				snap("api", "10.0.0.2", 7, 3, 1, base),
				snap("uploads", "global", 2, 8, 4, base),
			})
			if err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			snapshots, err := backend.List(ctx, "api")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(snapshots) != 2 {
				t.Fatalf("Expected 2 snapshots for policy api, got %d", len(snapshots))
			}
			for _, s := range snapshots {
				if s.Policy != "api" {
					t.Errorf("Expected policy api, got %s", s.Policy)
				}
				if s.Partition == "10.0.0.1" && s.SuccessfulLeases != 2 {
					t.Errorf("Expected latest snapshot for 10.0.0.1, got counters %d", s.SuccessfulLeases)
				}
			}

			all, err := backend.List(ctx, "")
			if err != nil {
				t.Fatalf("List all failed: %v", err)
			}
			if len(all) != 3 {
				t.Errorf("Expected 3 partitions across all policies, got %d", len(all))
			}
		})
	}
}

// TestBackend_Cleanup verifies old snapshots are removed and recent ones kept.
func TestBackend_Cleanup(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().Truncate(time.Second)

			err := backend.Save(ctx, []*Snapshot{
				snap("api", "10.0.0.1", 9, 1, 0, base.Add(-48*time.Hour)),
				snap("api", "10.0.0.1", 8, 2, 0, base),
				snap("api", "10.0.0.2", 7, 3, 1, base.Add(-48*time.Hour)),
			})
			if err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			deleted, err := backend.Cleanup(ctx, base.Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("Cleanup failed: %v", err)
			}
			if deleted != 2 {
				t.Errorf("Expected 2 deleted snapshots, got %d", deleted)
			}

			loaded, err := backend.Load(ctx, "api", "10.0.0.1")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded == nil || loaded.SuccessfulLeases != 2 {
				t.Errorf("Expected recent snapshot to survive cleanup, got %+v", loaded)
			}

			gone, err := backend.Load(ctx, "api", "10.0.0.2")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if gone != nil {
				t.Errorf("Expected fully expired partition to be gone, got %+v", gone)
			}
		})
	}
}

// TestBackend_SaveValidation verifies invalid snapshots are rejected.
func TestBackend_SaveValidation(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := backend.Save(ctx, []*Snapshot{nil}); err == nil {
				t.Error("Expected error for nil snapshot")
			}
			if err := backend.Save(ctx, []*Snapshot{snap("", "p", 0, 0, 0, time.Now())}); err == nil {
				t.Error("Expected error for empty policy")
			}
			if err := backend.Save(ctx, []*Snapshot{snap("api", "", 0, 0, 0, time.Now())}); err == nil {
				t.Error("Expected error for empty partition")
			}
		})
	}
}

// TestBackend_ConcurrentSaves verifies backends tolerate concurrent writers.
func TestBackend_ConcurrentSaves(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					for j := 0; j < 20; j++ {
						err := backend.Save(ctx, []*Snapshot{
							snap("api", "10.0.0.1", int64(j), int64(j), 0, time.Now()),
						})
						if err != nil {
							t.Errorf("Save failed: %v", err)
							return
						}
					}
				}(i)
			}
			wg.Wait()

			loaded, err := backend.Load(ctx, "api", "10.0.0.1")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded == nil {
				t.Fatal("Expected snapshot after concurrent saves")
			}
		})
	}
}

// TestMemoryBackend_PerPartitionCap verifies the memory backend drops the
// oldest snapshots once the per-partition cap is reached.
func TestMemoryBackend_PerPartitionCap(t *testing.T) {
	backend := NewMemoryBackendWithConfig(MemoryBackendConfig{MaxPerPartition: 3})
	defer backend.Close()

	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 5; i++ {
		err := backend.Save(ctx, []*Snapshot{
			snap("api", "10.0.0.1", int64(i), int64(i), 0, base.Add(time.Duration(i)*time.Second)),
		})
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if got := backend.Size(); got != 3 {
		t.Errorf("Expected 3 retained snapshots, got %d", got)
	}

	loaded, err := backend.Load(ctx, "api", "10.0.0.1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.AvailablePermits != 4 {
		t.Errorf("Expected latest snapshot to survive cap, got %d", loaded.AvailablePermits)
	}
}

// TestSQLiteBackend_PersistsAcrossReopen verifies snapshots survive a close
// and reopen of the database file.
func TestSQLiteBackend_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "snapshots.db")
	ctx := context.Background()

	backend, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}

	err = backend.Save(ctx, []*Snapshot{
		snap("api", "10.0.0.1", 5, 5, 2, time.Now()),
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, "api", "10.0.0.1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || loaded.SuccessfulLeases != 5 {
		t.Errorf("Expected persisted snapshot after reopen, got %+v", loaded)
	}
}

// TestSQLiteBackend_CloseIsIdempotent verifies repeated Close calls are safe.
func TestSQLiteBackend_CloseIsIdempotent(t *testing.T) {
	backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}

	if err := backend.Close(); err != nil {
		t.Fatalf("First Close failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
}
