package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/worldpurpose/internal/ir"
	"github.com/roach88/worldpurpose/internal/ledger"
)

// Journal persists applied calls. Implemented by *store.Store.
type Journal interface {
	Append(ctx context.Context, call ir.Call, rcpt ir.Receipt) error
}

// Engine is the single-writer host around a purpose ledger.
//
// Thread-safety model:
//   - Apply(): safe from any goroutine; calls are serialized
//   - Submit(): safe from any goroutine; requires a running Run loop
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - Journal order equals application order
//   - Only mutating calls advance the clock or reach the journal
//   - The live ledger only ever holds journaled state
//   - Payouts happen after the withdrawal is journaled
//   - A rejection is a receipt, never an error
type Engine struct {
	mu sync.Mutex // serializes apply and replay

	ledger    *ledger.Ledger
	journal   Journal
	clock     *Clock
	tokens    TxTokenGenerator
	payout    ledger.Transferer
	metrics   *Metrics
	logger    *slog.Logger
	queue     *requestQueue
	listeners []ledger.Listener
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock sets the logical clock. Default: NewClock().
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithTxTokens sets the tx token generator. Default: UUIDv7Generator.
func WithTxTokens(g TxTokenGenerator) EngineOption {
	return func(e *Engine) {
		e.tokens = g
	}
}

// WithTransferer sets how withdrawals are paid out. Default: LogTransferer.
func WithTransferer(t ledger.Transferer) EngineOption {
	return func(e *Engine) {
		e.payout = t
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine around an empty ledger.
// A nil journal runs without persistence.
func New(j Journal, opts ...EngineOption) *Engine {
	e := &Engine{
		journal: j,
		clock:   NewClock(),
		tokens:  UUIDv7Generator{},
		queue:   newRequestQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.payout == nil {
		e.payout = LogTransferer{Logger: e.logger}
	}

	e.queue.depth = e.metrics.queueDepth
	e.ledger = ledger.New()
	return e
}

// Subscribe registers fn for every PurposeChanged committed by Apply.
// Events are not re-emitted during Replay.
func (e *Engine) Subscribe(fn ledger.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// notify runs with e.mu held, so e.listeners is stable.
func (e *Engine) notify(ev ledger.PurposeChanged) {
	for _, fn := range e.listeners {
		fn(ev)
	}
}

// Ledger returns the live ledger for read-only inspection.
// Mutating it directly bypasses the journal.
func (e *Engine) Ledger() *ledger.Ledger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Apply executes one call and returns its receipt.
//
// The engine fills in the call's seq, ID and versions, and a tx token when
// the call has none. A ledger rejection is reported through the receipt's
// OutputCase; the returned error is reserved for invalid calls and journal
// failures. A call whose journal append fails leaves the ledger untouched
// and pays nobody.
func (e *Engine) Apply(ctx context.Context, call ir.Call) (ir.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(ctx, call)
}

// apply must be called with e.mu held.
func (e *Engine) apply(ctx context.Context, call ir.Call) (ir.Receipt, error) {
	if !call.Action.Valid() {
		return ir.Receipt{}, invalidCall("unknown action %q", call.Action)
	}
	cmd, err := decodeCall(call)
	if err != nil {
		return ir.Receipt{}, err
	}
	if call.TxToken == "" {
		call.TxToken = e.tokens.Generate()
	}

	if !call.Action.Mutating() {
		return e.query(ctx, call, cmd)
	}

	rcpt, err := e.commit(ctx, call, cmd)
	if err != nil || call.Action != ir.ActionWithdraw || !rcpt.Succeeded() {
		return rcpt, err
	}
	return e.payOut(ctx, call.TxToken, cmd.caller, rcpt)
}

// stamp replaces call's caller and args with their decoded form and fills
// in the versions, seq and ID.
func stamp(call *ir.Call, cmd command, seq int64) error {
	call.Caller = string(cmd.caller)
	call.Args = cmd.args
	call.EngineVersion = ir.EngineVersion
	call.IRVersion = ir.IRVersion
	call.Seq = seq

	id, err := ir.CallID(call.TxToken, call.Action, call.Caller, call.Args, call.Seq)
	if err != nil {
		return fmt.Errorf("apply %s: %w", call.Action, err)
	}
	call.ID = id
	return nil
}

// query answers a read-only call at the current seq without journaling it.
func (e *Engine) query(ctx context.Context, call ir.Call, cmd command) (ir.Receipt, error) {
	seq := e.clock.Current()
	if err := stamp(&call, cmd, seq); err != nil {
		return ir.Receipt{}, err
	}

	outputCase, result := execute(ctx, e.ledger, cmd)
	rcpt, err := newReceipt(call.ID, outputCase, result, seq)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("apply %s: %w", call.Action, err)
	}

	e.metrics.observe(call.Action, rcpt, e.ledger)
	e.logger.Debug("query answered",
		"action", call.Action,
		"caller", call.Caller,
		"outcome", rcpt.OutputCase,
	)
	return rcpt, nil
}

// commit executes a mutating call against a copy of the ledger and journals
// it. The copy replaces the live ledger, and its notifications reach
// subscribers, only after the journal accepts the entry.
func (e *Engine) commit(ctx context.Context, call ir.Call, cmd command) (ir.Receipt, error) {
	if err := stamp(&call, cmd, e.clock.Next()); err != nil {
		return ir.Receipt{}, err
	}

	staged, err := ledger.NewFromState(e.ledger.Snapshot())
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("apply %s: stage ledger: %w", call.Action, err)
	}
	var events []ledger.PurposeChanged
	staged.Subscribe(func(ev ledger.PurposeChanged) {
		events = append(events, ev)
	})

	outputCase, result := execute(ctx, staged, cmd)
	rcpt, err := newReceipt(call.ID, outputCase, result, e.clock.Next())
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("apply %s: %w", call.Action, err)
	}

	if e.journal != nil {
		if err := e.journal.Append(ctx, call, rcpt); err != nil {
			e.metrics.journalFailed()
			e.logger.Error("journal append failed",
				"error", err,
				"call_id", call.ID,
				"action", call.Action,
				"caller", call.Caller,
				"seq", call.Seq,
			)
			return ir.Receipt{}, &RuntimeError{
				Code:    ErrCodeJournal,
				Message: err.Error(),
				Seq:     call.Seq,
				CallID:  call.ID,
			}
		}
	}

	e.ledger = staged
	for _, ev := range events {
		e.notify(ev)
	}
	e.metrics.observe(call.Action, rcpt, staged)

	e.logger.Info("call applied",
		"action", call.Action,
		"caller", call.Caller,
		"seq", call.Seq,
		"outcome", rcpt.OutputCase,
	)
	return rcpt, nil
}

// payOut transfers a journaled withdrawal. When the transfer fails the debit
// is reversed by a journaled restoreWithdrawal entry, and that entry's
// TransferFailed receipt is returned in place of the withdrawal's.
func (e *Engine) payOut(ctx context.Context, txToken string, caller ledger.Identity, rcpt ir.Receipt) (ir.Receipt, error) {
	wei, _ := rcpt.Result.Str(ResultAmount)
	amount, err := ledger.ParseWei(wei)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("pay out %s: %w", rcpt.CallID, err)
	}

	err = e.payout.Transfer(ctx, caller, amount)
	if err == nil {
		e.metrics.paidOut(amount)
		return rcpt, nil
	}

	e.logger.Warn("payout failed, restoring balance",
		"error", err,
		"call_id", rcpt.CallID,
		"caller", string(caller),
		"wei", amount.String(),
	)
	restore := restoreCall(caller, txToken, amount)
	cmd, err := decodeCall(restore)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("pay out %s: %w", rcpt.CallID, err)
	}
	// The debit is already journaled; the restore must not be lost to a
	// cancelled request.
	return e.commit(context.WithoutCancel(ctx), restore, cmd)
}

func newReceipt(callID, outputCase string, result ir.IRObject, seq int64) (ir.Receipt, error) {
	id, err := ir.ReceiptID(callID, outputCase, result, seq)
	if err != nil {
		return ir.Receipt{}, err
	}
	return ir.Receipt{
		ID:         id,
		CallID:     callID,
		OutputCase: outputCase,
		Result:     result,
		Seq:        seq,
	}, nil
}

// Submit hands call to the Run loop and waits for its receipt.
// Returns ErrStopped if the engine has been stopped, or ctx.Err() if ctx
// ends first. A call abandoned by its submitter may still be applied.
func (e *Engine) Submit(ctx context.Context, call ir.Call) (ir.Receipt, error) {
	reply := make(chan response, 1)
	if !e.queue.Enqueue(request{ctx: ctx, call: call, reply: reply}) {
		return ir.Receipt{}, ErrStopped
	}

	select {
	case <-ctx.Done():
		return ir.Receipt{}, ctx.Err()
	case r := <-reply:
		return r.receipt, r.err
	}
}

// Run starts the single-writer loop over submitted calls.
// Blocks until ctx is cancelled or Stop() is called. Requests still queued
// when Run returns are answered with ErrStopped.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	defer e.drain()

	for {
		req, ok := e.queue.TryDequeue()
		if ok {
					e.process(ctx, req)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Drained() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Engine) process(ctx context.Context, req request) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- response{err: err}
		return
	}
	// Errors are returned to the submitter; the loop keeps going.
	rcpt, err := e.Apply(ctx, req.call)
	req.reply <- response{receipt: rcpt, err: err}
}

func (e *Engine) drain() {
	for {
		req, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		req.reply <- response{err: ErrStopped}
	}
}

// Stop gracefully shuts down the engine.
// Closes the request queue, which will cause Run() to return.
func (e *Engine) Stop() {
	e.queue.Close()
}
