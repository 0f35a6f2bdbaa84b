// Package limits partitions the rate-limiting engine across independent
// callers.
//
// # Overview
//
// The package maps (policy, partition key) pairs to limiter instances from
// pkg/limits/ratelimit, creating them on first use and evicting them after a
// configurable idle period so memory stays bounded no matter how many
// distinct partition keys (client IPs, API keys) a deployment sees.
//
//   - Store: the partitioned limiter cache with construct-once semantics
//     and a background idle sweep
//   - Policy: binds a name, a partition-key resolver, and a limiter factory
//   - Manager: evaluates every policy for a request and yields one Decision
//
// # Example
//
//	policy, _ := limits.BuildPolicy(config.PolicyConfig{
//	    Name:        "per-ip",
//	    Algorithm:   "token_bucket",
//	    PermitLimit: 100,
//	    BurstLimit:  100,
//	    Window:      time.Minute,
//	    PartitionBy: "client_ip",
//	})
//	manager := limits.NewManager([]limits.Policy{policy}, limits.ManagerConfig{})
//	defer manager.Close()
//
//	decision, err := manager.Check(r)
//	defer decision.Release()
//	if !decision.Allowed {
//	    // reject with decision.Lease's retry hints
//	}
//
// Partitions are fully independent: there are no cross-limiter locks, so
// throughput scales linearly with partition count.
package limits
