// Package store provides SQLite-backed durable storage for the ledger.
//
// The store holds:
//   - Transactions: one row per record id, tombstones included
//   - Checkpoints: replication cursors (remote pull position, push sequence)
//   - Leases: named leadership leases shared by every process using the file
//
// # Change Feed
//
// Every committed mutation of the transactions table gets the next feed
// sequence number (seq) and, only after the commit, a full snapshot of the
// non-deleted records is queued to every subscriber. Writes and feed
// publication share one mutex, so subscribers see snapshots in commit order.
// Commits made by other processes on the same file are picked up by Watch.
//
// # Merge Rules
//
// Local inserts are append-only: a duplicate id is a validation error.
// Remote versions are merged last-write-wins (record.Supersedes); a merge
// that loses changes nothing and publishes nothing, which makes repeated
// delivery of the same remote record a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - _txlock=immediate: Transactions take the write lock up front, so a
//     read-then-write merge never fails to upgrade under contention
package store
