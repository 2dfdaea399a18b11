// Package store provides SQLite-backed durable storage for dispense.
//
// Tables:
//   - subjects: one record per device (credits, outstanding requests)
//   - audit_events: append-only audit log
//   - shadows: desired/reported documents per device
//   - messages: published refresh notifications
//
// # Conditional Writes
//
// Every subject row carries a version. Put only succeeds when the caller's
// Record.Version matches the stored row, so two invocations that loaded the
// same record cannot both overwrite it: the loser gets ErrConflict and must
// reload. Version 0 means "not stored yet" and inserts.
//
// # Encoding
//
//   - credits: exact decimal text ("2.00"), never a REAL column
//   - requests, desired, reported: RFC 8785 canonical JSON
//   - timestamps: fixed-width RFC 3339 UTC, so text order is time order
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s for locks
//   - foreign_keys=ON: Enforce referential integrity
//   - MaxOpenConns=1: Single writer
package store
