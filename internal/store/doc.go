// Package store provides SQLite-backed storage for Archetype schemes,
// entries and upload metadata.
//
// Tables:
//   - schemes: name, version and the field list as a JSON array
//   - entries: documents as JSON objects stamped with a scheme version
//   - uploads: mime type and size of uploaded files
//   - scheme_migrations: audit trail of migration passes
//
// # Critical Patterns
//
// Atomic scheme writes:
//   - SaveScheme updates the scheme row, rewrites every entry and appends
//     the migration record in ONE transaction
//   - The update is a compare-and-swap on (version, fields); a lost race
//     returns ir.ErrVersionConflict and changes nothing
//
// Deterministic reads:
//   - Entries are always returned ORDER BY id ASC
//   - Schemes are listed ORDER BY name COLLATE BINARY, id
//
// Document fidelity:
//   - Entry data keeps key insertion order and exact integers
//
// Errors:
//   - Missing rows wrap ir.ErrNotFound
//   - SQLITE_BUSY and SQLITE_LOCKED wrap ir.ErrBusy
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
