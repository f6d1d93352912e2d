// Package ir provides the journal record types for worldpurpose.
//
// A Call is a request made against the ledger by one identity; a Receipt is
// its outcome. Both carry a logical clock seq and a content-addressed ID so
// that the journal can be replayed and verified byte for byte.
//
// This package imports nothing internal. Constraints:
//   - No float types anywhere; amounts travel as base-10 wei strings
//   - All JSON tags use snake_case
//   - Ordering uses seq only, never wall-clock time
package ir
