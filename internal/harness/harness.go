package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"github.com/roach88/worldpurpose/internal/config"
	"github.com/roach88/worldpurpose/internal/engine"
	"github.com/roach88/worldpurpose/internal/ir"
	"github.com/roach88/worldpurpose/internal/ledger"
	"github.com/roach88/worldpurpose/internal/store"
	"github.com/roach88/worldpurpose/internal/wallet"
)

// amountKeys are arg and result keys holding wei amounts. Scenario values
// for these keys are written in the scenario's units.
var amountKeys = map[string]bool{
	engine.ArgStake:           true,
	engine.ResultInvestment:   true,
	engine.ResultAmount:       true,
	engine.ResultBalance:      true,
	engine.ResultWithdrawable: true,
	engine.ResultLocked:       true,
}

// Harness is the test execution engine.
// It runs scenarios with a fresh clock and a fixed tx token.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	wallets *wallet.Accounts
	units   config.Config
	logger  *slog.Logger

	// pending holds notifications emitted by the call in progress.
	pending []ledger.PurposeChanged
	events  int
	staked  ledger.Amount
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory journal, wallets and engine
// 2. Execute setup steps (all must succeed)
// 3. Execute flow steps with expect validation
// 4. Replay the journal into a second engine and compare ledgers
// 5. Check conservation and evaluate assertions against the final state
//
// The returned error is reserved for scenarios that cannot run at all.
// Failed expectations and assertions are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Setup {
		rcpt, err := h.execute(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
		if !rcpt.Succeeded() {
			return nil, fmt.Errorf("setup step %d: %s by %s was rejected: %s",
				i, step.Invoke, step.As, rcpt.OutputCase)
		}
	}

	for i, step := range scenario.Flow {
		rcpt, err := h.execute(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
		if step.Expect != nil {
			for _, msg := range h.checkExpect(step.Expect, rcpt) {
				result.AddError(fmt.Sprintf("flow step %d (%s): %s", i, step.Invoke, msg))
			}
		}
	}

	if err := h.verifyReplay(ctx); err != nil {
		result.AddError(err.Error())
	} else {
		result.Replayed = true
	}

	actx := &AssertionContext{
		Ledger:  h.engine.Ledger(),
		Wallets: h.wallets,
		Events:  h.events,
		Staked:  h.staked,
		Units:   h.units,
	}
	result.Conserved = assertConservation(actx, nil) == nil
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	h := &Harness{
		store:   st,
		wallets: wallet.NewAccounts(),
		units:   config.Config{Units: scenario.Units},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	for id, s := range scenario.Wallets {
		amount, err := h.units.ParseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", id, err)
		}
		h.wallets.Fund(ledger.Identity(id), amount)
	}
	for _, id := range scenario.RejectTransfers {
		h.wallets.Reject(ledger.Identity(id))
	}

	token := scenario.TxToken
	if token == "" {
		token = DefaultTxToken
	}

	h.engine = engine.New(st,
		engine.WithClock(engine.NewClock()),
		engine.WithTxTokens(engine.NewFixedGenerator(token)),
		engine.WithTransferer(h.wallets),
		engine.WithLogger(h.logger),
	)
	h.engine.Subscribe(func(ev ledger.PurposeChanged) {
		h.pending = append(h.pending, ev)
	})
	return h, nil
}

// execute applies one step and appends its call, notifications and receipt
// to the trace.
func (h *Harness) execute(ctx context.Context, step FlowStep, result *Result) (ir.Receipt, error) {
	args, err := h.convertArgs(step.Args)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("failed to convert args: %w", err)
	}

	call := ir.Call{
		Action: ir.Action(step.Invoke),
		Caller: step.As,
		Args:   args,
	}

	// A mutating call takes the seq after the clock's current one. The
	// receipt's seq is later still when a failed payout was restored.
	callSeq := h.engine.Clock().Current()
	if call.Action.Mutating() {
		callSeq++
	}

	h.pending = h.pending[:0]
	rcpt, err := h.engine.Apply(ctx, call)
	if err != nil {
		return ir.Receipt{}, err
	}

	result.AddCallTrace(step.Invoke, step.As, ir.ToAny(args), callSeq)
	for _, ev := range h.pending {
		result.AddEventTrace(map[string]any{
			engine.ResultOwner:      string(ev.Owner),
			engine.ResultPurpose:    ev.Purpose,
			engine.ResultInvestment: ev.Investment.String(),
		}, callSeq)
		h.events++
	}
	result.AddReceiptTrace(rcpt.OutputCase, ir.ToAny(rcpt.Result), rcpt.Seq)

	if call.Action == ir.ActionSetPurpose && rcpt.Succeeded() {
		stake, _ := args.Str(engine.ArgStake)
		amount, err := ledger.ParseWei(stake)
		if err != nil {
			return ir.Receipt{}, fmt.Errorf("accepted stake: %w", err)
		}
		total, ok := h.staked.Add(amount)
		if !ok {
			return ir.Receipt{}, fmt.Errorf("accepted stakes overflow")
		}
		h.staked = total
	}

	h.logger.Info("step completed",
		"action", step.Invoke,
		"caller", step.As,
		"output_case", rcpt.OutputCase,
		"seq", rcpt.Seq,
	)
	return rcpt, nil
}

// checkExpect compares a receipt against an expect clause. Result keys are
// matched as a subset.
func (h *Harness) checkExpect(expect *ExpectClause, rcpt ir.Receipt) []string {
	var errs []string
	if rcpt.OutputCase != expect.Case {
		errs = append(errs, fmt.Sprintf("expected case %q, got %q", expect.Case, rcpt.OutputCase))
	}
	if len(expect.Result) == 0 {
		return errs
	}

	want, err := h.convertArgs(expect.Result)
	if err != nil {
		return append(errs, fmt.Sprintf("invalid expected result: %v", err))
	}
	for _, key := range want.SortedKeys() {
		got, ok := rcpt.Result[key]
		if !ok {
			errs = append(errs, fmt.Sprintf("result.%s: missing", key))
			continue
		}
		if !reflect.DeepEqual(want[key], got) {
			errs = append(errs, fmt.Sprintf("result.%s: expected %v, got %v",
				key, ir.ToAny(want[key]), ir.ToAny(got)))
		}
	}
	return errs
}

// verifyReplay rebuilds the ledger from the journal in a second engine and
// compares it with the live one.
func (h *Harness) verifyReplay(ctx context.Context) error {
	entries, err := h.store.Entries(ctx)
	if err != nil {
		return fmt.Errorf("replay: read journal: %w", err)
	}

	replayed := engine.New(nil, engine.WithLogger(h.logger))
	if err := replayed.Replay(ctx, entries); err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	live := h.engine.Ledger().Snapshot()
	got := replayed.Ledger().Snapshot()
	if !reflect.DeepEqual(live, got) {
		return fmt.Errorf("replay: ledger diverged: live %s, replayed %s",
			describeState(live), describeState(got))
	}
	return nil
}

func describeState(st ledger.State) string {
	current := "none"
	if st.Current != nil {
		current = fmt.Sprintf("%s/%q/%s", st.Current.Owner, st.Current.Purpose, st.Current.Investment)
	}
	return fmt.Sprintf("{current: %s, balances: %v}", current, st.Balances)
}

// convertArgs converts YAML-parsed values to an IRObject. Amount keys are
// converted from the scenario's units to wei strings.
func (h *Harness) convertArgs(args map[string]interface{}) (ir.IRObject, error) {
	result := make(ir.IRObject, len(args))
	for key, val := range args {
		if val == nil {
			return nil, fmt.Errorf("field %q: null values are forbidden", key)
		}
		if amountKeys[key] {
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("field %q: amounts must be quoted, got %v", key, val)
			}
			amount, err := h.units.ParseAmount(s)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			result[key] = ir.IRString(amount.String())
			continue
		}
		irVal, err := ir.FromAny(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		result[key] = irVal
	}
	return result, nil
}
