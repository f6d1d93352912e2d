package ir

// Action names an operation exposed by the ledger.
type Action string

const (
	ActionSetPurpose        Action = "setPurpose"
	ActionWithdraw          Action = "withdraw"
	ActionGetBalance        Action = "getBalance"
	ActionGetCurrentPurpose Action = "getCurrentPurpose"

	// ActionRestoreWithdrawal is journaled by the engine when a withdrawal's
	// payout fails after the withdrawal was committed. Callers cannot issue it.
	ActionRestoreWithdrawal Action = "restoreWithdrawal"
)

// OutputSuccess is the output case of every successful call.
// Rejected calls carry the ledger's rejection code instead.
const OutputSuccess = "Success"

// Valid reports whether a is an action callers may issue.
func (a Action) Valid() bool {
	switch a {
	case ActionSetPurpose, ActionWithdraw, ActionGetBalance, ActionGetCurrentPurpose:
		return true
	}
	return false
}

// Mutating reports whether a can change ledger state. Only mutating calls
// are journaled.
func (a Action) Mutating() bool {
	return a == ActionSetPurpose || a == ActionWithdraw || a == ActionRestoreWithdrawal
}

// Call is a request against the ledger.
type Call struct {
	ID            string   `json:"id"` // Content-addressed hash
	TxToken       string   `json:"tx_token"`
	Action        Action   `json:"action"`
	Caller        string   `json:"caller"`
	Args          IRObject `json:"args"`
	Seq           int64    `json:"seq"` // Logical clock
	EngineVersion string   `json:"engine_version"`
	IRVersion     string   `json:"ir_version"`
}

// Receipt is the outcome of a Call.
type Receipt struct {
	ID         string   `json:"id"` // Content-addressed hash
	CallID     string   `json:"call_id"`
	OutputCase string   `json:"output_case"` // "Success" or a rejection code
	Result     IRObject `json:"result"`
	Seq        int64    `json:"seq"`
}

// Succeeded reports whether the call was applied.
func (r Receipt) Succeeded() bool {
	return r.OutputCase == OutputSuccess
}
