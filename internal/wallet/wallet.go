// Package wallet models the external accounts that withdrawals pay into.
//
// Accounts implements ledger.Transferer. The scenario harness and tests use
// it to check that a withdrawer's wallet grows by exactly the amount paid.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/worldpurpose/internal/ledger"
)

// ErrRejected is returned for transfers to an identity marked with Reject.
var ErrRejected = errors.New("recipient rejected transfer")

// Accounts is an in-memory set of external balances.
type Accounts struct {
	mu       sync.Mutex
	balances map[ledger.Identity]ledger.Amount
	rejects  map[ledger.Identity]bool
	received ledger.Amount
	payouts  int

	// OnTransfer, when set, runs before each transfer is credited.
	// Tests use it to observe the journal at payout time.
	OnTransfer func(ctx context.Context, to ledger.Identity, amount ledger.Amount)
}

// NewAccounts returns an empty Accounts.
func NewAccounts() *Accounts {
	return &Accounts{
		balances: make(map[ledger.Identity]ledger.Amount),
		rejects:  make(map[ledger.Identity]bool),
	}
}

// Fund sets the opening external balance of id.
func (a *Accounts) Fund(id ledger.Identity, amount ledger.Amount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[id] = amount
}

// Reject makes every future transfer to id fail.
func (a *Accounts) Reject(id ledger.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects[id] = true
}

// Transfer implements ledger.Transferer.
func (a *Accounts) Transfer(ctx context.Context, to ledger.Identity, amount ledger.Amount) error {
	if hook := a.OnTransfer; hook != nil {
		hook(ctx, to, amount)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rejects[to] {
		return fmt.Errorf("transfer to %s: %w", to, ErrRejected)
	}
	next, ok := a.balances[to].Add(amount)
	if !ok {
		return fmt.Errorf("transfer to %s: wallet balance overflow", to)
	}
	total, ok := a.received.Add(amount)
	if !ok {
		return fmt.Errorf("transfer to %s: total received overflow", to)
	}
	a.balances[to] = next
	a.received = total
	a.payouts++
	return nil
}

// Balance returns the external balance of id.
func (a *Accounts) Balance(id ledger.Identity) ledger.Amount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances[id]
}

// Received returns the sum of every successful transfer.
func (a *Accounts) Received() ledger.Amount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.received
}

// Payouts returns the number of successful transfers.
func (a *Accounts) Payouts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.payouts
}

