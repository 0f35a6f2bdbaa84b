// Package snapshot captures per-partition limiter statistics on a cron
// schedule and persists them through a storage backend. Old snapshots are
// pruned according to the configured retention period.
package snapshot
