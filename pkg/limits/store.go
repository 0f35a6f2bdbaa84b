package limits

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"floodgate/pkg/limits/ratelimit"
)

// DefaultIdleTimeout is how long a partition may go unaccessed before its
// limiter is evicted, unless overridden in StoreConfig.
const DefaultIdleTimeout = 5 * time.Minute

// maxSweepInterval caps how long the idle sweep sleeps between passes.
const maxSweepInterval = time.Second

// storeKey is the composite identity of one partitioned limiter.
type storeKey struct {
	policy    string
	partition string
}

// storeEntry owns a limiter and its last-access timestamp. The timestamp is
// atomic so the hot read path can bump it under the shared read lock.
type storeEntry struct {
	limiter    ratelimit.Limiter
	lastAccess atomic.Int64 // unix nanos
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// IdleTimeout is the inactivity period after which an entry is evicted.
	// Zero means DefaultIdleTimeout.
	IdleTimeout time.Duration

	// Clock is the time source for access timestamps. Nil means SystemClock.
	Clock ratelimit.Clock

	// OnEvict, when set, is invoked after the sweep removes an idle entry.
	// Used for metrics; must not block.
	OnEvict func(policy, partition string)
}

// Store caches one limiter per (policy, partition) pair.
//
// The store exclusively owns the limiters it creates: eviction, removal,
// Clear, and Close all close the underlying limiter. Eviction is best
// effort; a partition that receives a request in the same instant it is
// evicted is simply recreated fresh on the next access.
type Store struct {
	clock       ratelimit.Clock
	idleTimeout time.Duration
	onEvict     func(policy, partition string)

	mu      sync.RWMutex
	entries map[storeKey]*storeEntry
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewStore creates a store and starts its background idle sweep. The sweep
// runs every min(IdleTimeout, 1s) and stops when the store is closed.
func NewStore(cfg StoreConfig) *Store {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.SystemClock()
	}

	s := &Store{
		clock:       cfg.Clock,
		idleTimeout: cfg.IdleTimeout,
		onEvict:     cfg.OnEvict,
		entries:     make(map[storeKey]*storeEntry),
		done:        make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// GetOrCreate returns the limiter for the given key, constructing it via
// factory on first access. The factory is invoked exactly once per key even
// under concurrent first access. Existing entries only have their access
// timestamp refreshed; the factory is not called.
func (s *Store) GetOrCreate(policyName, partitionKey string, factory func() (ratelimit.Limiter, error)) (ratelimit.Limiter, error) {
	key := storeKey{policy: policyName, partition: partitionKey}
	now := s.clock.Now().UnixNano()

	// Fast path: existing entry under the read lock.
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ratelimit.ErrClosed
	}
	if ent, ok := s.entries[key]; ok {
		ent.lastAccess.Store(now)
		s.mu.RUnlock()
		return ent.limiter, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ratelimit.ErrClosed
	}
	// Double check: another caller may have won the construction race.
	if ent, ok := s.entries[key]; ok {
		ent.lastAccess.Store(now)
		return ent.limiter, nil
	}

	limiter, err := factory()
	if err != nil {
		return nil, fmt.Errorf("construct limiter for policy %q partition %q: %w", policyName, partitionKey, err)
	}

	ent := &storeEntry{limiter: limiter}
	ent.lastAccess.Store(now)
	s.entries[key] = ent
	return limiter, nil
}

// TryRemove deletes and closes the entry if present, reporting whether one
// existed.
func (s *Store) TryRemove(policyName, partitionKey string) (bool, error) {
	key := storeKey{policy: policyName, partition: partitionKey}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ratelimit.ErrClosed
	}
	ent, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	_ = ent.limiter.Close()
	return true, nil
}

// Clear closes and removes all entries. The store remains usable.
func (s *Store) Clear() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ratelimit.ErrClosed
	}
	entries := s.entries
	s.entries = make(map[storeKey]*storeEntry)
	s.mu.Unlock()

	for _, ent := range entries {
		_ = ent.limiter.Close()
	}
	return nil
}

// Len returns the number of live partitioned limiters.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// PartitionStats is one partition's statistics snapshot.
type PartitionStats struct {
	Policy    string
	Partition string
	Stats     ratelimit.Statistics
}

// Snapshot captures statistics for every live partition. Entries whose
// limiter is concurrently closed are skipped.
func (s *Store) Snapshot() []PartitionStats {
	s.mu.RLock()
	keys := make([]storeKey, 0, len(s.entries))
	limiters := make([]ratelimit.Limiter, 0, len(s.entries))
	for k, ent := range s.entries {
		keys = append(keys, k)
		limiters = append(limiters, ent.limiter)
	}
	s.mu.RUnlock()

	snaps := make([]PartitionStats, 0, len(keys))
	for i, k := range keys {
		stats, err := limiters[i].Stats()
		if err != nil {
			continue
		}
		snaps = append(snaps, PartitionStats{Policy: k.policy, Partition: k.partition, Stats: stats})
	}
	return snaps
}

// Close stops the sweep and closes all entries. Idempotent; afterwards every
// operation fails with ratelimit.ErrClosed.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.closed = true
		entries := s.entries
		s.entries = nil
		s.mu.Unlock()

		for _, ent := range entries {
			_ = ent.limiter.Close()
		}
	})
	return nil
}

func (s *Store) sweepLoop() {
	interval := s.idleTimeout
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep evicts entries idle beyond the timeout. Candidates are gathered
// under the read lock and removed one at a time under the write lock so a
// burst of evictions never stalls unrelated GetOrCreate calls for long.
func (s *Store) sweep() {
	cutoff := s.clock.Now().Add(-s.idleTimeout).UnixNano()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	var expired []storeKey
	for k, ent := range s.entries {
		if ent.lastAccess.Load() < cutoff {
			expired = append(expired, k)
		}
	}
	s.mu.RUnlock()

	for _, k := range expired {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		ent, ok := s.entries[k]
		// Recheck under the write lock: the entry may have been touched or
		// removed since the scan.
		if !ok || ent.lastAccess.Load() >= cutoff {
			s.mu.Unlock()
			continue
		}
		delete(s.entries, k)
		s.mu.Unlock()

		_ = ent.limiter.Close()
		if s.onEvict != nil {
			s.onEvict(k.policy, k.partition)
		}
	}
}
