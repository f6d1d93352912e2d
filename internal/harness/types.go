package harness

// Trace event types.
const (
	TraceTypeCall    = "call"
	TraceTypeEvent   = "event"
	TraceTypeReceipt = "receipt"
)

// TraceEvent is one entry in a scenario trace.
type TraceEvent struct {
	Type       string `json:"type"` // "call", "event" or "receipt"
	Action     string `json:"action,omitempty"`
	Caller     string `json:"caller,omitempty"`
	Args       any    `json:"args,omitempty"`
	OutputCase string `json:"output_case,omitempty"`
	Result     any    `json:"result,omitempty"`
	Seq        int64  `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains calls, notifications and receipts in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	Errors []string `json:"errors,omitempty"`

	// Replayed is true when the journal replayed into a second engine and
	// reproduced the live ledger.
	Replayed bool `json:"replayed"`

	// Conserved is true when everything held plus everything paid out
	// equals the accepted stakes. It is reported whether or not the
	// scenario asserts it.
	Conserved bool `json:"conserved"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Calls returns the number of calls in the trace.
func (r *Result) Calls() int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Type == TraceTypeCall {
			n++
		}
	}
	return n
}

// AddCallTrace adds a call to the trace.
func (r *Result) AddCallTrace(action, caller string, args any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   TraceTypeCall,
		Action: action,
		Caller: caller,
		Args:   args,
		Seq:    seq,
	})
}

// AddEventTrace adds a PurposeChanged notification to the trace.
func (r *Result) AddEventTrace(fields any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   TraceTypeEvent,
		Result: fields,
		Seq:    seq,
	})
}

// AddReceiptTrace adds a receipt to the trace.
func (r *Result) AddReceiptTrace(outputCase string, result any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       TraceTypeReceipt,
		OutputCase: outputCase,
		Result:     result,
		Seq:        seq,
	})
}
