package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldpurpose/internal/config"
	"github.com/roach88/worldpurpose/internal/ledger"
	"github.com/roach88/worldpurpose/internal/wallet"
)

// displacedLedger returns a ledger where bob displaced alice (0.1 -> 0.11).
func displacedLedger(t *testing.T) *AssertionContext {
	t.Helper()
	l := ledger.New()
	_, err := l.SetPurpose("alice", "Plant a tree", ledger.MustParseEther("0.1"))
	require.NoError(t, err)
	_, err = l.SetPurpose("bob", "Clean the river", ledger.MustParseEther("0.11"))
	require.NoError(t, err)

	return &AssertionContext{
		Ledger:  l,
		Wallets: wallet.NewAccounts(),
		Events:  2,
		Staked:  ledger.MustParseEther("0.21"),
		Units:   config.Config{Units: config.UnitsEther},
	}
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	actx := displacedLedger(t)
	assertions := []Assertion{
		{Type: AssertBalance, As: "alice", Equals: "0.1"},
		{Type: AssertWithdrawable, As: "alice", Equals: "0.1"},
		{Type: AssertWithdrawable, As: "bob", Equals: "0"},
		{Type: AssertLocked, As: "bob", Equals: "0.11"},
		{Type: AssertLocked, As: "alice", Equals: "0"},
		{Type: AssertWallet, As: "alice", Equals: "0"},
		{Type: AssertPayoutCount, Count: 0},
		{Type: AssertCurrentPurpose, Expect: map[string]interface{}{"owner": "bob", "investment": "0.11"}},
		{Type: AssertEventCount, Count: 2},
		{Type: AssertConservation},
	}

	errs := EvaluateAssertions(NewResult(), assertions, actx)
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_BalanceMismatch(t *testing.T) {
	actx := displacedLedger(t)
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertBalance, As: "bob", Equals: "0.1"},
	}, actx)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Assertion failed: balance")
	assert.Contains(t, errs[0], "Expected: balance of bob = 0.1")
	assert.Contains(t, errs[0], "Actual: 0.11")
}

func TestEvaluateAssertions_WeiUnits(t *testing.T) {
	actx := displacedLedger(t)
	actx.Units = config.Config{Units: config.UnitsWei}

	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertBalance, As: "alice", Equals: "100000000000000000"},
		{Type: AssertCurrentPurpose, Expect: map[string]interface{}{"investment": "110000000000000000"}},
	}, actx)
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_InvalidEquals(t *testing.T) {
	actx := displacedLedger(t)
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertBalance, As: "alice", Equals: "lots"},
	}, actx)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `invalid equals "lots"`)
}

func TestEvaluateAssertions_CurrentPurpose(t *testing.T) {
	actx := displacedLedger(t)
	empty := &AssertionContext{Ledger: ledger.New(), Wallets: wallet.NewAccounts()}

	tests := []struct {
		name      string
		actx      *AssertionContext
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "none holds on empty ledger",
			actx:      empty,
			assertion: Assertion{Type: AssertCurrentPurpose, None: true},
		},
		{
			name:      "none fails when a purpose is set",
			actx:      actx,
			assertion: Assertion{Type: AssertCurrentPurpose, None: true},
			wantErr:   "no current purpose",
		},
		{
			name:      "expect fails on empty ledger",
			actx:      empty,
			assertion: Assertion{Type: AssertCurrentPurpose, Expect: map[string]interface{}{"owner": "bob"}},
			wantErr:   "Actual: no current purpose",
		},
		{
			name:      "owner mismatch",
			actx:      actx,
			assertion: Assertion{Type: AssertCurrentPurpose, Expect: map[string]interface{}{"owner": "alice"}},
			wantErr:   "Actual: owner = bob",
		},
		{
			name:      "purpose match",
			actx:      actx,
			assertion: Assertion{Type: AssertCurrentPurpose, Expect: map[string]interface{}{"purpose": "Clean the river"}},
		},
		{
			name:      "unknown field",
			actx:      actx,
			assertion: Assertion{Type: AssertCurrentPurpose, Expect: map[string]interface{}{"stake": "0.11"}},
			wantErr:   `unknown field "stake"`,
		},
		{
			name:      "unquoted value",
			actx:      actx,
			assertion: Assertion{Type: AssertCurrentPurpose, Expect: map[string]interface{}{"investment": 0.11}},
			wantErr:   "must be a quoted string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(NewResult(), []Assertion{tt.assertion}, tt.actx)
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestEvaluateAssertions_EventCount(t *testing.T) {
	actx := displacedLedger(t)
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertEventCount, Count: 3},
	}, actx)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Expected: 3 notifications")
	assert.Contains(t, errs[0], "Actual: 2 notifications")
}

func TestEvaluateAssertions_PayoutCount(t *testing.T) {
	actx := displacedLedger(t)
	_, err := actx.Ledger.Withdraw(context.Background(), "alice", actx.Wallets)
	require.NoError(t, err)

	assert.Empty(t, EvaluateAssertions(NewResult(), []Assertion{{Type: AssertPayoutCount, Count: 1}}, actx))

	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertPayoutCount, Count: 2}}, actx)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Expected: 2 payouts")
	assert.Contains(t, errs[0], "Actual: 1 payouts")
}

func TestEvaluateAssertions_Conservation(t *testing.T) {
	actx := displacedLedger(t)

	amount, err := actx.Ledger.Withdraw(context.Background(), "alice", actx.Wallets)
	require.NoError(t, err)
	assert.Equal(t, "0.1", amount.Ether())

	assert.Empty(t, EvaluateAssertions(NewResult(), []Assertion{{Type: AssertConservation}}, actx))

	actx.Staked = ledger.MustParseEther("0.3")
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertConservation}}, actx)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "held + paid out = 0.3")
	assert.Contains(t, errs[0], "held 0.11 + paid out 0.1")
}

func TestEvaluateAssertions_MissingContext(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertConservation}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires ledger context")

	errs = EvaluateAssertions(NewResult(), []Assertion{{Type: AssertWallet, As: "a", Equals: "1"}},
		&AssertionContext{Ledger: ledger.New()})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "wallet requires wallet context")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertBalance,
		Expected: "balance of alice = 1",
		Actual:   "0",
		Trace: []TraceEvent{
			{Type: TraceTypeCall, Action: "setPurpose", Caller: "alice", Args: map[string]any{"purpose": "p"}, Seq: 1},
			{Type: TraceTypeReceipt, OutputCase: "Success", Seq: 2},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: balance")
	assert.Contains(t, msg, "[1] setPurpose by alice")
	assert.NotContains(t, msg, "[2]")
}
