// Package ledger implements the world purpose ledger.
//
// The ledger holds exactly one active purpose record (after the first
// successful SetPurpose) and a balance per identity. Balances are funds the
// ledger holds on behalf of an identity:
//
//   - Locked: the current record's investment, held by the current owner.
//   - Withdrawable: everything else (stakes of displaced owners).
//
// STATE MACHINE:
//
//	(no record) --SetPurpose--> {owner, purpose, investment}
//	{owner A, x} --SetPurpose(B != A, y > x)--> {owner B, y}
//
// Every transition strictly increases the winning investment. There is no
// terminal state.
//
// INVARIANTS:
//   - Balance(owner) >= current investment
//   - sum(balances) + total withdrawn == total staked
//   - Rejected calls mutate nothing and emit nothing
//
// Amounts are integral wei (uint256). Floats never appear.
package ledger
