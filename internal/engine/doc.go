// Package engine hosts the purpose ledger.
//
// The engine turns calls into receipts. Every mutating call is stamped with a
// logical seq, applied to a copy of the ledger, and appended to the journal
// together with its receipt. The copy becomes the live ledger only once the
// append succeeds.
//
// ARCHITECTURE:
//
// Single-Writer Apply:
// Apply and the Run loop share one mutex, so the order calls reach the
// journal is the order they were applied to the ledger. Concurrent
// submitters use Submit; Run drains the request queue in FIFO order.
//
// Call Processing Flow:
// 1. Call decoded and validated (unknown actions, bad args and text that is
//    not UTF-8 are errors, not receipts); text is normalized to NFC
// 2. Mutating calls take a seq from Clock.Next(); read-only calls do not
// 3. Ledger operation runs on a staged copy; a rejection becomes the
//    receipt's output case
// 4. Receipt stamped with the next seq
// 5. Call and receipt appended to the journal in one transaction
// 6. Staged copy swapped in and PurposeChanged notifications delivered
// 7. A successful withdrawal is paid out. If the payout fails, a
//    restoreWithdrawal entry crediting the amount back goes through steps
//    2 to 6 and its TransferFailed receipt is returned
//
// Replay:
// Replay rebuilds a fresh ledger from the journal, re-executing each call at
// its recorded seq. Withdrawals are not paid out again, and failed payouts
// are undone by their restore entries. Every recomputed receipt must match
// the journal byte for byte or replay fails.
//
// Seq numbers come from the logical clock. Wall-clock time is never recorded.
package engine
