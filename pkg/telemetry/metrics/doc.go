// Package metrics exposes Prometheus metrics for the rate-limiting
// gateway.
//
// The Collector owns its own prometheus.Registry and registers:
//
//   - admissions_total{policy, outcome}: admission decisions
//   - admission_duration_seconds{outcome}: decision latency
//   - partitions_active: live partitioned limiter instances
//   - partition_evictions_total{policy}: idle evictions
//   - proxied_requests_total{code}: upstream responses by status class
//
// Mount Handler() on the configured metrics path to serve scrapes.
package metrics
