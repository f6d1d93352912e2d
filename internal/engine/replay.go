package engine

import (
	"context"
	"fmt"

	"github.com/roach88/worldpurpose/internal/ir"
	"github.com/roach88/worldpurpose/internal/ledger"
	"github.com/roach88/worldpurpose/internal/store"
)

// Replay rebuilds the ledger from journaled entries and verifies them.
//
// Entries must be in journal order (store.Entries). Each call is re-executed
// at its recorded seq against a fresh ledger, and its receipt must reproduce
// exactly. Withdrawals pay nobody, and a payout that failed in the original
// run is undone by its journaled restoreWithdrawal entry. On success the
// fresh ledger replaces the live one and the clock resumes after the last
// seq. On failure the live ledger is left untouched.
func (e *Engine) Replay(ctx context.Context, entries []store.Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fresh := ledger.New()
	var last int64
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.Call.Seq <= last {
			return newDivergenceError(entry.Call.Seq, entry.Call.ID, "seq order",
				fmt.Sprintf("> %d", last), fmt.Sprintf("%d", entry.Call.Seq))
		}
		if err := replayEntry(ctx, fresh, entry); err != nil {
			return err
		}
		last = max(entry.Call.Seq, entry.Receipt.Seq)
	}

	e.ledger = fresh
	e.clock.AdvanceTo(last)
	e.metrics.sync(fresh)

	e.logger.Info("journal replayed",
		"entries", len(entries),
		"seq", last,
	)
	return nil
}

func replayEntry(ctx context.Context, l *ledger.Ledger, entry store.Entry) error {
	call := entry.Call
	if !call.Action.Mutating() {
		return newDivergenceError(call.Seq, call.ID, "action", "a mutating action", string(call.Action))
	}

	id, err := ir.CallID(call.TxToken, call.Action, call.Caller, call.Args, call.Seq)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", call.Seq, err)
	}
	if id != call.ID {
		return newDivergenceError(call.Seq, call.ID, "call id", call.ID, id)
	}

	cmd, err := decodeCall(call)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", call.Seq, err)
	}

	outputCase, result := execute(ctx, l, cmd)

	rcpt, err := newReceipt(call.ID, outputCase, result, entry.Receipt.Seq)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", call.Seq, err)
	}
	if rcpt.OutputCase != entry.Receipt.OutputCase {
		return newDivergenceError(call.Seq, call.ID, "output case", entry.Receipt.OutputCase, rcpt.OutputCase)
	}
	if rcpt.ID != entry.Receipt.ID {
		want, _ := ir.MarshalCanonical(entry.Receipt.Result)
		got, _ := ir.MarshalCanonical(rcpt.Result)
		return newDivergenceError(call.Seq, call.ID, "receipt", string(want), string(got))
	}
	return nil
}
