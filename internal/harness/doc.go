// Package harness runs YAML scenarios against a real engine.
//
// # Scenario Format
//
//	name: withdraw_after_displacement
//	description: "Displaced owner withdraws exactly their stake"
//	tx_token: scenario-tx        # optional, default "scenario-tx"
//	units: ether                 # optional, ether (default) or wei
//	wallets:                     # optional opening external balances
//	  alice: "10"
//	reject_transfers: [mallory]  # optional, payouts to these fail
//	setup:                       # optional, every step must succeed
//	  - as: alice
//	    invoke: setPurpose
//	    args: { purpose: "first", stake: "0.1" }
//	flow:
//	  - as: bob
//	    invoke: setPurpose
//	    args: { purpose: "second", stake: "0.11" }
//	    expect:
//	      case: Success
//	      result: { owner: bob, investment: "0.11" }
//	assertions:
//	  - type: withdrawable
//	    as: alice
//	    equals: "0.1"
//	  - type: conservation
//
// Amounts in args, expected results and assertions are written in the
// scenario's units and must be quoted. Traces record wei.
//
// # Assertion Types
//
//   - balance: ledger balance (locked + withdrawable) of an identity
//   - withdrawable: withdrawable balance of an identity
//   - current_purpose: subset match on the current record, or none: true
//   - wallet: external wallet balance of an identity
//   - event_count: number of PurposeChanged notifications
//   - conservation: ledger holdings + paid out == accepted stakes
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory journal, a fresh logical
// clock and a single fixed tx token, so the trace is identical across runs
// and can be compared against a golden file. After the flow the harness
// replays the journal into a second engine and fails the scenario if the
// replayed ledger differs.
package harness
