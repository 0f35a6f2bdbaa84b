// Package storage persists per-partition limiter statistics snapshots.
//
// The limiters themselves are purely in-memory; snapshots exist for
// operational visibility across restarts (which partitions were hot, how
// many leases succeeded or failed), not for restoring limiter state.
//
// Two backends implement Backend:
//
//   - MemoryBackend: latest snapshot per partition, no persistence
//   - SQLiteBackend: append-only history in SQLite with retention cleanup
package storage
