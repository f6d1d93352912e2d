package engine

import (
	"context"
	"errors"
	"slices"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/worldpurpose/internal/ir"
	"github.com/roach88/worldpurpose/internal/ledger"
)

// Argument and result keys.
const (
	ArgPurpose = "purpose"
	ArgStake   = "stake"
	ArgAmount  = "amount"

	ResultOwner        = "owner"
	ResultPurpose      = "purpose"
	ResultInvestment   = "investment"
	ResultAmount       = "amount"
	ResultBalance      = "balance"
	ResultWithdrawable = "withdrawable"
	ResultLocked       = "locked"
	ResultMessage      = "message"
)

// SetPurposeCall builds a setPurpose call. The stake travels as a wei string.
func SetPurposeCall(caller ledger.Identity, purpose string, stake ledger.Amount) ir.Call {
	return ir.Call{
		Action: ir.ActionSetPurpose,
		Caller: string(caller),
		Args: ir.IRObject{
			ArgPurpose: ir.IRString(purpose),
			ArgStake:   ir.IRString(stake.String()),
		},
	}
}

// WithdrawCall builds a withdraw call.
func WithdrawCall(caller ledger.Identity) ir.Call {
	return ir.Call{Action: ir.ActionWithdraw, Caller: string(caller), Args: ir.IRObject{}}
}

// BalanceCall builds a getBalance call.
func BalanceCall(caller ledger.Identity) ir.Call {
	return ir.Call{Action: ir.ActionGetBalance, Caller: string(caller), Args: ir.IRObject{}}
}

// CurrentPurposeCall builds a getCurrentPurpose call. Caller is optional.
func CurrentPurposeCall(caller ledger.Identity) ir.Call {
	return ir.Call{Action: ir.ActionGetCurrentPurpose, Caller: string(caller), Args: ir.IRObject{}}
}

// restoreCall builds the entry journaled when a committed withdrawal's payout
// fails. It carries the withdrawal's tx token.
func restoreCall(caller ledger.Identity, txToken string, amount ledger.Amount) ir.Call {
	return ir.Call{
		Action:  ir.ActionRestoreWithdrawal,
		Caller:  string(caller),
		Args:    ir.IRObject{ArgAmount: ir.IRString(amount.String())},
		TxToken: txToken,
	}
}

// command is a decoded, validated call. caller and args are in the form
// that is hashed and journaled.
type command struct {
	action  ir.Action
	caller  ledger.Identity
	args    ir.IRObject
	purpose string
	amount  ledger.Amount
}

var allowedArgs = map[ir.Action][]string{
	ir.ActionSetPurpose:        {ArgPurpose, ArgStake},
	ir.ActionWithdraw:          nil,
	ir.ActionGetBalance:        nil,
	ir.ActionGetCurrentPurpose: nil,
	ir.ActionRestoreWithdrawal: {ArgAmount},
}

// decodeCall validates call and normalizes its text to NFC, the form the
// canonical encoding hashes and stores. Text that is not valid UTF-8 would
// be rewritten by that encoding, so it is rejected instead.
func decodeCall(call ir.Call) (command, error) {
	if _, known := allowedArgs[call.Action]; !known {
		return command{}, invalidCall("unknown action %q", call.Action)
	}
	if call.Caller == "" && call.Action != ir.ActionGetCurrentPurpose {
		return command{}, invalidCall("%s: caller is required", call.Action)
	}
	if !utf8.ValidString(call.Caller) {
		return command{}, invalidCall("%s: caller is not valid UTF-8", call.Action)
	}
	for _, k := range call.Args.SortedKeys() {
		if !slices.Contains(allowedArgs[call.Action], k) {
			return command{}, invalidCall("%s: unexpected argument %q", call.Action, k)
		}
	}

	cmd := command{
		action: call.Action,
		caller: ledger.Identity(norm.NFC.String(call.Caller)),
		args:   ir.IRObject{},
	}
	switch call.Action {
	case ir.ActionSetPurpose:
		purpose, ok := call.Args.Str(ArgPurpose)
		if !ok {
			return command{}, invalidCall("setPurpose: %q must be a string", ArgPurpose)
		}
		if !utf8.ValidString(purpose) {
			return command{}, invalidCall("setPurpose: %q is not valid UTF-8", ArgPurpose)
		}
		stake, err := decodeWei(call, ArgStake)
		if err != nil {
			return command{}, err
		}
		cmd.purpose = norm.NFC.String(purpose)
		cmd.amount = stake
		cmd.args[ArgPurpose] = ir.IRString(cmd.purpose)
		cmd.args[ArgStake] = ir.IRString(stake.String())

	case ir.ActionRestoreWithdrawal:
		amount, err := decodeWei(call, ArgAmount)
		if err != nil {
			return command{}, err
		}
		cmd.amount = amount
		cmd.args[ArgAmount] = ir.IRString(amount.String())
	}
	return cmd, nil
}

func decodeWei(call ir.Call, key string) (ledger.Amount, error) {
	text, ok := call.Args.Str(key)
	if !ok {
		return ledger.Amount{}, invalidCall("%s: %q must be a wei string", call.Action, key)
	}
	amount, err := ledger.ParseWei(text)
	if err != nil {
		return ledger.Amount{}, invalidCall("%s: %v", call.Action, err)
	}
	return amount, nil
}

// deferredPayout stands in for the payout while a withdrawal is staged.
// The engine pays out only after the withdrawal is journaled.
var deferredPayout = ledger.TransferFunc(func(context.Context, ledger.Identity, ledger.Amount) error {
	return nil
})

// execute runs cmd against l and returns the receipt's output case and result.
// Ledger rejections become output cases; execute itself never fails.
// Withdrawals only debit l; paying out is the caller's job.
func execute(ctx context.Context, l *ledger.Ledger, cmd command) (string, ir.IRObject) {
	switch cmd.action {
	case ir.ActionSetPurpose:
		rec, err := l.SetPurpose(cmd.caller, cmd.purpose, cmd.amount)
		if err != nil {
			return rejection(err)
		}
		return ir.OutputSuccess, recordResult(rec)

	case ir.ActionWithdraw:
		amount, err := l.Withdraw(ctx, cmd.caller, deferredPayout)
		if err != nil {
			return rejection(err)
		}
		return ir.OutputSuccess, ir.IRObject{ResultAmount: ir.IRString(amount.String())}

	case ir.ActionRestoreWithdrawal:
		if err := l.Restore(cmd.caller, cmd.amount); err != nil {
			return rejection(err)
		}
		return rejection(ledger.ErrTransferFailed)

	case ir.ActionGetBalance:
		return ir.OutputSuccess, ir.IRObject{
			ResultBalance:      ir.IRString(l.Balance(cmd.caller).String()),
			ResultWithdrawable: ir.IRString(l.Withdrawable(cmd.caller).String()),
			ResultLocked:       ir.IRString(l.Locked(cmd.caller).String()),
		}

	default: // ir.ActionGetCurrentPurpose
		rec, ok := l.CurrentPurpose()
		if !ok {
			return ir.OutputSuccess, ir.IRObject{}
		}
		return ir.OutputSuccess, recordResult(rec)
	}
}

func recordResult(rec ledger.Record) ir.IRObject {
	return ir.IRObject{
		ResultOwner:      ir.IRString(rec.Owner),
		ResultPurpose:    ir.IRString(rec.Purpose),
		ResultInvestment: ir.IRString(rec.Investment.String()),
	}
}

// rejection maps a ledger error onto an output case. Transfer causes are
// left out of the result so replay reproduces it exactly.
func rejection(err error) (string, ir.IRObject) {
	var re *ledger.RejectError
	if errors.As(err, &re) {
		return string(re.Code), ir.IRObject{ResultMessage: ir.IRString(re.Message)}
	}
	return "Error", ir.IRObject{ResultMessage: ir.IRString(err.Error())}
}
