package storage

import (
	"context"
	"time"
)

// Snapshot is one partition's statistics at a point in time.
type Snapshot struct {
	// Policy and Partition identify the limiter instance.
	Policy    string
	Partition string

	// AvailablePermits is the capacity available at capture time.
	AvailablePermits int64

	// SuccessfulLeases and FailedLeases are the limiter's monotonic
	// counters at capture time.
	SuccessfulLeases int64
	FailedLeases     int64

	// CapturedAt is when the snapshot was taken.
	CapturedAt time.Time
}

// Backend persists statistics snapshots. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Save persists a batch of snapshots.
	Save(ctx context.Context, snapshots []*Snapshot) error

	// Load returns the most recent snapshot for one partition, or nil when
	// none exists.
	Load(ctx context.Context, policy, partition string) (*Snapshot, error)

	// List returns the most recent snapshot of every partition under a
	// policy. An empty policy lists all partitions.
	List(ctx context.Context, policy string) ([]*Snapshot, error)

	// Cleanup deletes snapshots captured before the given time, returning
	// how many were removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases backend resources. The backend must not be used after
	// Close.
	Close() error
}
