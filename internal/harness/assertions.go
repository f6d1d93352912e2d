package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/worldpurpose/internal/config"
	"github.com/roach88/worldpurpose/internal/engine"
	"github.com/roach88/worldpurpose/internal/ledger"
	"github.com/roach88/worldpurpose/internal/wallet"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		if event.Type == TraceTypeCall {
			fmt.Fprintf(&buf, "  [%d] %s by %s %v\n", i+1, event.Action, event.Caller, event.Args)
		}
	}

	return buf.String()
}

// AssertionContext carries the final state that assertions inspect.
type AssertionContext struct {
	Ledger  *ledger.Ledger
	Wallets *wallet.Accounts
	Events  int           // PurposeChanged notifications observed
	Staked  ledger.Amount // sum of accepted stakes
	Units   config.Config
}

// assertAmount compares an amount against an expected value written in the
// scenario's units.
func assertAmount(typ string, actx *AssertionContext, assertion Assertion, actual ledger.Amount, trace []TraceEvent) error {
	want, err := actx.Units.ParseAmount(assertion.Equals)
	if err != nil {
		return fmt.Errorf("%s %s: invalid equals %q: %w", typ, assertion.As, assertion.Equals, err)
	}
	if want.Cmp(actual) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%s of %s = %s", typ, assertion.As, actx.Units.FormatAmount(want)),
		Actual:   actx.Units.FormatAmount(actual),
		Trace:    trace,
	}
}

// assertCurrentPurpose checks the active record against a subset match, or
// checks that there is none.
func assertCurrentPurpose(actx *AssertionContext, assertion Assertion, trace []TraceEvent) error {
	rec, ok := actx.Ledger.CurrentPurpose()
	if assertion.None {
		if !ok {
			return nil
		}
		return &AssertionError{
			Type:     AssertCurrentPurpose,
			Expected: "no current purpose",
			Actual:   fmt.Sprintf("%s owns %q", rec.Owner, rec.Purpose),
			Trace:    trace,
		}
	}
	if !ok {
		return &AssertionError{
			Type:     AssertCurrentPurpose,
			Expected: fmt.Sprintf("current purpose matching %v", assertion.Expect),
			Actual:   "no current purpose",
			Trace:    trace,
		}
	}

	actual := map[string]string{
		engine.ResultOwner:      string(rec.Owner),
		engine.ResultPurpose:    rec.Purpose,
		engine.ResultInvestment: actx.Units.FormatAmount(rec.Investment),
	}
	for key, raw := range assertion.Expect {
		want, ok := raw.(string)
		if !ok {
			return fmt.Errorf("current_purpose: %s must be a quoted string, got %v", key, raw)
		}
		got, known := actual[key]
		if !known {
			return fmt.Errorf("current_purpose: unknown field %q", key)
		}
		if key == engine.ResultInvestment {
			amount, err := actx.Units.ParseAmount(want)
			if err != nil {
				return fmt.Errorf("current_purpose: invalid investment %q: %w", want, err)
			}
			if amount.Cmp(rec.Investment) == 0 {
				continue
			}
		} else if want == got {
			continue
		}
		return &AssertionError{
			Type:     AssertCurrentPurpose,
			Expected: fmt.Sprintf("%s = %s", key, want),
			Actual:   fmt.Sprintf("%s = %s", key, got),
			Trace:    trace,
		}
	}
	return nil
}

// assertConservation checks that value neither appeared nor vanished:
// everything still held by the ledger plus everything paid out equals the
// sum of accepted stakes.
func assertConservation(actx *AssertionContext, trace []TraceEvent) error {
	held := actx.Ledger.TotalHeld()
	out, ok := held.Add(actx.Wallets.Received())
	if ok && out.Cmp(actx.Staked) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertConservation,
		Expected: fmt.Sprintf("held + paid out = %s", actx.Units.FormatAmount(actx.Staked)),
		Actual: fmt.Sprintf("held %s + paid out %s",
			actx.Units.FormatAmount(held), actx.Units.FormatAmount(actx.Wallets.Received())),
		Trace: trace,
	}
}

// EvaluateAssertions evaluates all assertions against the final state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error
		if actx == nil || actx.Ledger == nil {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %s requires ledger context", i, assertion.Type))
			continue
		}

		id := ledger.Identity(assertion.As)
		switch assertion.Type {
		case AssertBalance:
			err = assertAmount(AssertBalance, actx, assertion, actx.Ledger.Balance(id), result.Trace)
		case AssertWithdrawable:
			err = assertAmount(AssertWithdrawable, actx, assertion, actx.Ledger.Withdrawable(id), result.Trace)
		case AssertLocked:
			err = assertAmount(AssertLocked, actx, assertion, actx.Ledger.Locked(id), result.Trace)
		case AssertWallet:
			if actx.Wallets == nil {
				err = fmt.Errorf("assertion[%d]: wallet requires wallet context", i)
				break
			}
			err = assertAmount(AssertWallet, actx, assertion, actx.Wallets.Balance(id), result.Trace)
		case AssertCurrentPurpose:
			err = assertCurrentPurpose(actx, assertion, result.Trace)
		case AssertEventCount:
			if actx.Events != assertion.Count {
				err = &AssertionError{
					Type:     AssertEventCount,
					Expected: fmt.Sprintf("%d notifications", assertion.Count),
					Actual:   fmt.Sprintf("%d notifications", actx.Events),
					Trace:    result.Trace,
				}
			}
		case AssertPayoutCount:
			if actx.Wallets == nil {
				err = fmt.Errorf("assertion[%d]: payout_count requires wallet context", i)
				break
			}
			if n := actx.Wallets.Payouts(); n != assertion.Count {
				err = &AssertionError{
					Type:     AssertPayoutCount,
					Expected: fmt.Sprintf("%d payouts", assertion.Count),
					Actual:   fmt.Sprintf("%d payouts", n),
					Trace:    result.Trace,
				}
			}
		case AssertConservation:
			if actx.Wallets == nil {
				err = fmt.Errorf("assertion[%d]: conservation requires wallet context", i)
				break
			}
			err = assertConservation(actx, result.Trace)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
