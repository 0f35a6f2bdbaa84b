package limits

import (
	"errors"
	"net/http"
	"sync"

	"floodgate/pkg/limits/ratelimit"
)

// acquireRetries bounds how often Check retries when an acquisition races
// with an eviction that closed the limiter between lookup and use.
const acquireRetries = 3

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Store configures the owned partitioned store.
	Store StoreConfig
}

// Manager evaluates every configured policy for a request and produces a
// single admission Decision. It owns the partitioned store and the limiters
// within it; Close tears both down.
//
// Policies can be swapped at runtime (config hot reload). Partitions of
// removed policies stop being accessed and age out through idle eviction.
type Manager struct {
	store *Store
	clock ratelimit.Clock

	mu       sync.RWMutex
	policies []Policy
}

// Decision is the outcome of evaluating all policies for one request.
type Decision struct {
	// Allowed reports whether every policy granted a permit.
	Allowed bool

	// Policy names the rejecting policy, or the policy whose lease has the
	// least remaining capacity when allowed.
	Policy string

	// Partition is the partition key of the lease below.
	Partition string

	// Lease carries the limit/remaining/retry/reset values for response
	// headers: the rejecting lease when denied, the tightest lease when
	// allowed. Nil only when no policies are configured.
	Lease *ratelimit.Lease

	held []*ratelimit.Lease
}

// Release returns all capacity held by this decision. Must be called on
// every allowed decision once the protected operation finishes; concurrency
// policies starve otherwise. Idempotent through the leases' own idempotency.
func (d *Decision) Release() {
	for _, lease := range d.held {
		lease.Release()
	}
}

// NewManager creates a manager with an owned store.
func NewManager(policies []Policy, cfg ManagerConfig) *Manager {
	store := NewStore(cfg.Store)
	clock := cfg.Store.Clock
	if clock == nil {
		clock = ratelimit.SystemClock()
	}
	return &Manager{store: store, clock: clock, policies: policies}
}

// SetPolicies replaces the active policy set. In-flight checks finish with
// the set they started with.
func (m *Manager) SetPolicies(policies []Policy) {
	m.mu.Lock()
	m.policies = policies
	m.mu.Unlock()
}

// Policies returns the active policy set.
func (m *Manager) Policies() []Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policies
}

// Store exposes the underlying partitioned store for introspection.
func (m *Manager) Store() *Store { return m.store }

// Snapshot captures per-partition statistics across all policies.
func (m *Manager) Snapshot() []PartitionStats {
	return m.store.Snapshot()
}

// Check acquires one permit from each policy that applies to the request.
//
// On the first rejection, permits already granted by earlier policies are
// released immediately (so rejected requests are not double-charged against
// concurrency caps) and the rejecting lease is returned. When everything is
// granted, the returned Decision holds every lease; the caller must Release
// it when the request completes.
func (m *Manager) Check(r *http.Request) (*Decision, error) {
	m.mu.RLock()
	policies := m.policies
	m.mu.RUnlock()

	var held []*ratelimit.Lease
	releaseHeld := func() {
		for _, lease := range held {
			lease.Release()
		}
	}

	decision := &Decision{Allowed: true}
	for _, p := range policies {
		partition := GlobalPartitionKey
		if p.Partition != nil {
			if key := p.Partition(r); key != "" {
				partition = key
			}
		}

		lease, err := m.acquire(p, partition)
		if err != nil {
			releaseHeld()
			return nil, err
		}

		if !lease.Acquired() {
			releaseHeld()
			return &Decision{Policy: p.Name, Partition: partition, Lease: lease}, nil
		}

		held = append(held, lease)
		if decision.Lease == nil || lease.Remaining() < decision.Lease.Remaining() {
			decision.Policy = p.Name
			decision.Partition = partition
			decision.Lease = lease
		}
	}

	decision.held = held
	return decision, nil
}

// acquire takes one permit from the policy's partitioned limiter, retrying
// when the limiter was closed by a racing eviction; the store then hands
// back a freshly constructed instance.
func (m *Manager) acquire(p Policy, partition string) (*ratelimit.Lease, error) {
	var lastErr error
	for attempt := 0; attempt < acquireRetries; attempt++ {
		limiter, err := m.store.GetOrCreate(p.Name, partition, func() (ratelimit.Limiter, error) {
			return p.NewLimiter(m.clock)
		})
		if err != nil {
			return nil, err
		}

		lease, err := limiter.AttemptAcquire(1)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ratelimit.ErrClosed) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Close tears down the store and every limiter it owns. Idempotent.
func (m *Manager) Close() error {
	return m.store.Close()
}
