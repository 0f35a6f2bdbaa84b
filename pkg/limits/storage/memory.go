package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBackend implements Backend using in-memory storage.
// This is the default backend and provides fast access with no persistence.
// All data is lost when the process exits.
//
// MemoryBackend is thread-safe and supports concurrent access using sync.RWMutex.
type MemoryBackend struct {
	// history maps composite key (policy:partition) to snapshots in capture order.
	history map[string][]*Snapshot

	// mu protects access to the history map.
	mu sync.RWMutex

	// maxPerPartition caps how many snapshots are retained per partition.
	maxPerPartition int
}

// MemoryBackendConfig configures the memory backend.
type MemoryBackendConfig struct {
	// MaxPerPartition is the maximum number of snapshots kept per partition.
	// Oldest snapshots are dropped when this limit is reached.
	// Default: 1,000
	MaxPerPartition int
}

// NewMemoryBackend creates a new in-memory storage backend with default settings.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithConfig(MemoryBackendConfig{
		MaxPerPartition: 1000,
	})
}

// NewMemoryBackendWithConfig creates a new in-memory backend with custom configuration.
func NewMemoryBackendWithConfig(cfg MemoryBackendConfig) *MemoryBackend {
	if cfg.MaxPerPartition == 0 {
		cfg.MaxPerPartition = 1000
	}

	return &MemoryBackend{
		history:         make(map[string][]*Snapshot),
		maxPerPartition: cfg.MaxPerPartition,
	}
}

// Save persists a batch of snapshots.
func (m *MemoryBackend) Save(ctx context.Context, snapshots []*Snapshot) error {
	for _, snap := range snapshots {
		if snap == nil {
			return fmt.Errorf("snapshot cannot be nil")
		}
		if snap.Policy == "" {
			return fmt.Errorf("policy cannot be empty")
		}
		if snap.Partition == "" {
			return fmt.Errorf("partition cannot be empty")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, snap := range snapshots {
		stored := *snap
		if stored.CapturedAt.IsZero() {
			stored.CapturedAt = time.Now()
		}

		key := m.makeKey(snap.Policy, snap.Partition)
		entries := append(m.history[key], &stored)
		if len(entries) > m.maxPerPartition {
			entries = entries[len(entries)-m.maxPerPartition:]
		}
		m.history[key] = entries
	}

	return nil
}

// Load returns the most recent snapshot for a policy and partition.
func (m *MemoryBackend) Load(ctx context.Context, policy, partition string) (*Snapshot, error) {
	if policy == "" {
		return nil, fmt.Errorf("policy cannot be empty")
	}
	if partition == "" {
		return nil, fmt.Errorf("partition cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.history[m.makeKey(policy, partition)]
	if len(entries) == 0 {
		return nil, nil
	}

	latest := *entries[len(entries)-1]
	return &latest, nil
}

// List returns the most recent snapshot of every partition under a policy.
// An empty policy lists all partitions.
func (m *MemoryBackend) List(ctx context.Context, policy string) ([]*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var snapshots []*Snapshot
	for _, entries := range m.history {
		if len(entries) == 0 {
			continue
		}
		latest := entries[len(entries)-1]
		if policy != "" && latest.Policy != policy {
			continue
		}
		cp := *latest
		snapshots = append(snapshots, &cp)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Policy != snapshots[j].Policy {
			return snapshots[i].Policy < snapshots[j].Policy
		}
		return snapshots[i].Partition < snapshots[j].Partition
	})

	return snapshots, nil
}

// Cleanup removes snapshots captured before the given time.
func (m *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key, entries := range m.history {
		kept := entries[:0]
		for _, snap := range entries {
			if snap.CapturedAt.Before(olderThan) {
				deleted++
				continue
			}
			kept = append(kept, snap)
		}
		if len(kept) == 0 {
			delete(m.history, key)
		} else {
			m.history[key] = kept
		}
	}

	return deleted, nil
}

// Close releases any resources held by the backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// Size returns the total number of stored snapshots.
// This is useful for monitoring and testing.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, entries := range m.history {
		total += len(entries)
	}
	return total
}

// makeKey creates a composite key from policy and partition.
func (m *MemoryBackend) makeKey(policy, partition string) string {
	return fmt.Sprintf("%s:%s", policy, partition)
}
