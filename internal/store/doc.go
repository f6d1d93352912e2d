// Package store provides the SQLite-backed call journal for worldpurpose.
//
// The journal is append-only:
//   - calls: every mutating call applied to the ledger (accepted or rejected)
//   - receipts: exactly one outcome per call
//
// Replaying the calls in seq order against an empty ledger reproduces the
// ledger state and every receipt.
//
// # Ordering
//
// All reads are ORDER BY seq ASC, id ASC COLLATE BINARY. seq is a logical
// clock assigned by the engine; wall-clock time is never stored.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// # Schema Versions
//
// PRAGMA user_version records the newest migration applied. Open upgrades
// older journals and refuses ones written by a newer binary, since their
// entries may not replay here.
//
// Call and receipt IDs are computed in internal/ir/hash.go.
package store
