// Package store provides SQLite-backed durable storage for pages.
//
// Each registered page type owns one table, pages_<Type>, keyed by
// (root, id, version). Attribute columns are fixed at registration time and
// named f_<field>. Provenance is implicit: a child row stores its parent's
// canonical URI in parent_uri; there is no edge table.
//
// # Invariants
//
// Row + latest index atomicity
//   - InsertPage writes the row and advances latest_versions in one
//     transaction, so a reader never sees a latest pointer before its row.
//   - latest_versions only advances (max of old and new version).
//
// Uniqueness arbitration
//   - The primary key on (root, id, version) is the final arbiter when two
//     writers race to create the same child; the loser gets
//     ErrCodeDuplicateChild wrapping ErrCodeConflict.
//
// Deterministic query results
//   - Every multi-row query orders by root, id COLLATE BINARY, then version.
//
// Row integrity
//   - Each row carries a BLAKE3 checksum of its canonical encoding; reads
//     that fail to verify return ErrCodeDataCorruption.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks up to Options.BusyTimeout
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: Writers take the lock at BEGIN
package store
