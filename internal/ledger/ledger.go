package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Identity names a participant. It is supplied by the caller's execution
// context and is never derived by the ledger.
type Identity string

// Record is the single active purpose.
type Record struct {
	Owner      Identity `json:"owner"`
	Purpose    string   `json:"purpose"`
	Investment Amount   `json:"investment"`
}

// PurposeChanged is emitted once per successful SetPurpose.
type PurposeChanged struct {
	Owner      Identity `json:"owner"`
	Purpose    string   `json:"purpose"`
	Investment Amount   `json:"investment"`
}

// Listener observes PurposeChanged notifications.
// Listeners run with the ledger locked and must not call back into it.
type Listener func(PurposeChanged)

// Transferer moves withdrawn value out of the ledger to its owner.
type Transferer interface {
	Transfer(ctx context.Context, to Identity, amount Amount) error
}

// TransferFunc adapts a function to the Transferer interface.
type TransferFunc func(ctx context.Context, to Identity, amount Amount) error

// Transfer calls f.
func (f TransferFunc) Transfer(ctx context.Context, to Identity, amount Amount) error {
	return f(ctx, to, amount)
}

// State is a point-in-time copy of the ledger's contents.
type State struct {
	Current  *Record
	Balances map[Identity]Amount
}

// Ledger is the purpose ledger. All methods are safe for concurrent use;
// mutators are applied one at a time.
type Ledger struct {
	mu        sync.RWMutex
	current   *Record
	balances  map[Identity]Amount
	listeners []Listener
}

// New returns an empty ledger with no active purpose.
func New() *Ledger {
	return &Ledger{balances: make(map[Identity]Amount)}
}

// NewFromState returns a ledger seeded with st.
// The owner of st.Current must hold at least the record's investment.
func NewFromState(st State) (*Ledger, error) {
	l := New()
	for id, bal := range st.Balances {
		l.balances[id] = bal
	}
	if st.Current != nil {
		if st.Current.Investment.IsZero() {
			return nil, fmt.Errorf("new ledger: current record has zero investment")
		}
		if l.balances[st.Current.Owner].Cmp(st.Current.Investment) < 0 {
			return nil, fmt.Errorf("new ledger: owner %q holds %s, below investment %s",
				st.Current.Owner, l.balances[st.Current.Owner], st.Current.Investment)
		}
		rec := *st.Current
		l.current = &rec
	}
	return l, nil
}

// Subscribe registers fn for PurposeChanged notifications.
func (l *Ledger) Subscribe(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// SetPurpose makes caller the owner of a new purpose backed by stake.
//
// Checks run in a fixed order and the first failure wins:
// empty text, zero stake, self-override, stake not above the current
// investment. On success the previous owner's investment unlocks and the
// full stake is retained as caller's locked balance.
func (l *Ledger) SetPurpose(caller Identity, text string, stake Amount) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if text == "" {
		return Record{}, ErrEmptyPurpose
	}
	if stake.IsZero() {
		return Record{}, ErrNonPositiveStake
	}
	if l.current != nil {
		if caller == l.current.Owner {
			return Record{}, ErrSelfOverride
		}
		if stake.Cmp(l.current.Investment) <= 0 {
			return Record{}, ErrInsufficientStake
		}
	}

	// The previous owner's investment is already in their balance; dropping
	// the record is what unlocks it. Only the caller's balance grows.
	newBalance, ok := l.balances[caller].Add(stake)
	if !ok {
		return Record{}, ErrOverflow
	}

	l.balances[caller] = newBalance
	rec := Record{Owner: caller, Purpose: text, Investment: stake}
	l.current = &rec

	ev := PurposeChanged{Owner: caller, Purpose: text, Investment: stake}
	for _, fn := range l.listeners {
		fn(ev)
	}

	return rec, nil
}

// Withdraw pays out everything caller holds beyond their locked stake.
//
// The balance is debited before t runs, so a reentrant Withdraw during the
// transfer sees nothing to withdraw. If the transfer fails the debit is
// restored and ErrTransferFailed is returned.
func (l *Ledger) Withdraw(ctx context.Context, caller Identity, t Transferer) (Amount, error) {
	l.mu.Lock()
	amount := l.withdrawableLocked(caller)
	if amount.IsZero() {
		l.mu.Unlock()
		return Amount{}, ErrNothingToWithdraw
	}
	remaining, _ := l.balances[caller].Sub(amount)
	l.balances[caller] = remaining
	l.mu.Unlock()

	if err := t.Transfer(ctx, caller, amount); err != nil {
		l.mu.Lock()
		restored, _ := l.balances[caller].Add(amount)
		l.balances[caller] = restored
		l.mu.Unlock()
		return Amount{}, transferFailed(err)
	}

	return amount, nil
}

// Restore credits amount back to id after a withdrawal whose payout failed
// outside the ledger. It is the inverse of the debit Withdraw made.
func (l *Ledger) Restore(id Identity, amount Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount.IsZero() {
		return ErrNothingToWithdraw
	}
	restored, ok := l.balances[id].Add(amount)
	if !ok {
		return ErrOverflow
	}
	l.balances[id] = restored
	return nil
}

// Balance returns everything the ledger holds for id, locked or not.
func (l *Ledger) Balance(id Identity) Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[id]
}

// Withdrawable returns the part of id's balance that Withdraw would pay out.
func (l *Ledger) Withdrawable(id Identity) Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.withdrawableLocked(id)
}

// Locked returns the part of id's balance backing the current purpose.
func (l *Ledger) Locked(id Identity) Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lockedLocked(id)
}

// CurrentPurpose returns the active record. ok is false before the first
// successful SetPurpose.
func (l *Ledger) CurrentPurpose() (rec Record, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return Record{}, false
	}
	return *l.current, true
}

// Snapshot copies the ledger's state.
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := State{Balances: make(map[Identity]Amount, len(l.balances))}
	for id, bal := range l.balances {
		st.Balances[id] = bal
	}
	if l.current != nil {
		rec := *l.current
		st.Current = &rec
	}
	return st
}

// TotalHeld returns the sum of all balances.
func (l *Ledger) TotalHeld() Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()

	held := make([]Amount, 0, len(l.balances))
	for _, bal := range l.balances {
		held = append(held, bal)
	}
	// Every balance came from a stake that fit in 256 bits, so this cannot
	// overflow while conservation holds.
	total, _ := Sum(held...)
	return total
}

func (l *Ledger) lockedLocked(id Identity) Amount {
	if l.current != nil && l.current.Owner == id {
		return l.current.Investment
	}
	return Amount{}
}

func (l *Ledger) withdrawableLocked(id Identity) Amount {
	free, ok := l.balances[id].Sub(l.lockedLocked(id))
	if !ok {
		return Amount{}
	}
	return free
}
