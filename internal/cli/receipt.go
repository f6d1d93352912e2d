package cli

import (
	"fmt"
	"io"

	"github.com/roach88/worldpurpose/internal/config"
	"github.com/roach88/worldpurpose/internal/engine"
	"github.com/roach88/worldpurpose/internal/ir"
	"github.com/roach88/worldpurpose/internal/ledger"
)

// amountKeys are receipt result keys holding wei amounts.
var amountKeys = map[string]bool{
	engine.ResultInvestment:   true,
	engine.ResultAmount:       true,
	engine.ResultBalance:      true,
	engine.ResultWithdrawable: true,
	engine.ResultLocked:       true,
}

// ReceiptView is a receipt rendered for humans: amounts are in the
// configured units.
type ReceiptView struct {
	Action     string            `json:"action"`
	Caller     string            `json:"caller,omitempty"`
	OutputCase string            `json:"output_case"`
	Result     map[string]string `json:"result"`
	Seq        int64             `json:"seq"`
	CallID     string            `json:"call_id"`
	ReceiptID  string            `json:"receipt_id"`
}

// newReceiptView converts a receipt. Unparseable amounts are shown as stored.
func newReceiptView(call ir.Call, rcpt ir.Receipt, cfg config.Config) ReceiptView {
	view := ReceiptView{
		Action:     string(call.Action),
		Caller:     call.Caller,
		OutputCase: rcpt.OutputCase,
		Result:     make(map[string]string, len(rcpt.Result)),
		Seq:        rcpt.Seq,
		CallID:     rcpt.CallID,
		ReceiptID:  rcpt.ID,
	}
	for _, k := range rcpt.Result.SortedKeys() {
		s, ok := rcpt.Result.Str(k)
		if !ok {
			view.Result[k] = fmt.Sprint(ir.ToAny(rcpt.Result[k]))
			continue
		}
		if amountKeys[k] {
			if a, err := ledger.ParseWei(s); err == nil {
				s = cfg.FormatAmount(a)
			}
		}
		view.Result[k] = s
	}
	return view
}

// writeReceipt prints a receipt in the configured format. A rejected call
// returns an ExitFailure error after printing.
func writeReceipt(w io.Writer, format string, view ReceiptView) error {
	rejected := view.OutputCase != ir.OutputSuccess

	if format == "json" {
		response := okResponse(view)
		if rejected {
			response = errorResponse(view, &CLIError{
				Code:    view.OutputCase,
				Message: view.Result[engine.ResultMessage],
			})
		}
		response.CallID = view.CallID
		if err := writeJSON(w, response); err != nil {
			return err
		}
	} else {
		writeReceiptText(w, view)
	}

	if rejected {
		return NewExitError(ExitFailure, fmt.Sprintf("%s rejected: %s", view.Action, view.OutputCase))
	}
	return nil
}

func writeReceiptText(w io.Writer, view ReceiptView) {
	who := ""
	if view.Caller != "" {
		who = " by " + view.Caller
	}

	if view.OutputCase != ir.OutputSuccess {
		fmt.Fprintf(w, "✗ %s%s: %s\n", view.Action, who, view.OutputCase)
		if msg := view.Result[engine.ResultMessage]; msg != "" {
			fmt.Fprintf(w, "  %s\n", msg)
		}
		return
	}

	switch ir.Action(view.Action) {
	case ir.ActionSetPurpose:
		fmt.Fprintf(w, "✓ Purpose set%s (seq %d)\n", who, view.Seq)
		writeRecord(w, view.Result)
	case ir.ActionWithdraw:
		fmt.Fprintf(w, "✓ Withdrew %s%s\n", view.Result[engine.ResultAmount], who)
	case ir.ActionGetBalance:
		fmt.Fprintf(w, "Balance of %s\n", view.Caller)
		fmt.Fprintf(w, "  Balance:      %s\n", view.Result[engine.ResultBalance])
		fmt.Fprintf(w, "  Withdrawable: %s\n", view.Result[engine.ResultWithdrawable])
		fmt.Fprintf(w, "  Locked:       %s\n", view.Result[engine.ResultLocked])
	case ir.ActionGetCurrentPurpose:
		if len(view.Result) == 0 {
			fmt.Fprintln(w, "No purpose set.")
			return
		}
		fmt.Fprintln(w, "Current purpose")
		writeRecord(w, view.Result)
	}
}

func writeRecord(w io.Writer, result map[string]string) {
	fmt.Fprintf(w, "  Purpose:    %s\n", result[engine.ResultPurpose])
	fmt.Fprintf(w, "  Owner:      %s\n", result[engine.ResultOwner])
	fmt.Fprintf(w, "  Investment: %s\n", result[engine.ResultInvestment])
}
