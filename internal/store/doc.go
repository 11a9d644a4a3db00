// Package store provides SQLite-backed durable storage for the scansync
// pending queue.
//
// The store holds three tables:
//   - pending_records: scans awaiting confirmed submission, keyed by seq
//   - quarantined_records: scans the server rejected, kept for review
//   - session: the single logged-in operator session
//
// # Ordering
//
// seq is an INTEGER PRIMARY KEY AUTOINCREMENT. SQLite never reuses an
// AUTOINCREMENT value, so seq is strictly increasing for the lifetime of the
// database file, across restarts and deletions. Every read orders by
// seq ASC. EnqueuedAt is never used for ordering.
//
// # Durability
//
// Append is a single INSERT and therefore atomic: after a crash the record is
// either fully present or absent. Quarantine moves a row between tables in
// one transaction.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=FULL: a committed scan survives power loss
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Failures of the storage medium are reported as *Error, which matches
// ErrStorageUnavailable under errors.Is.
package store
