package ratelimit

import "sync/atomic"

// Statistics is a point-in-time snapshot of a limiter's counters.
// SuccessfulLeases + FailedLeases equals the total number of acquisition
// attempts since the limiter was created; both counters only grow.
type Statistics struct {
	// AvailablePermits is the capacity currently available.
	AvailablePermits int64

	// SuccessfulLeases counts acquired leases since creation.
	SuccessfulLeases int64

	// FailedLeases counts rejected leases since creation.
	FailedLeases int64
}

// leaseCounters tallies attempt outcomes. Increments are lock-free; the
// counters are monotonic and order-independent so they need no coordination
// with the limiter mutex.
type leaseCounters struct {
	successes atomic.Int64
	failures  atomic.Int64
}

func (c *leaseCounters) record(acquired bool) {
	if acquired {
		c.successes.Add(1)
	} else {
		c.failures.Add(1)
	}
}

func (c *leaseCounters) snapshot(available int64) Statistics {
	return Statistics{
		AvailablePermits: available,
		SuccessfulLeases: c.successes.Load(),
		FailedLeases:     c.failures.Load(),
	}
}
