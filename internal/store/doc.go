// Package store provides SQLite-backed storage for received spots.
//
// Three append-mostly tables:
//   - sessions: one row per established feed session
//   - spots: accepted spots, linked to their session
//   - rejections: malformed lines kept verbatim for later inspection
//
// # Ordering
//
// Rows are read back in insertion order (ORDER BY id), never by timestamp,
// so two spots received in the same millisecond keep their feed order.
// Timestamps are stored as INTEGER Unix milliseconds in UTC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Spots must reference a known session
package store
