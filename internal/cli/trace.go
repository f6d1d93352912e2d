package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/worldpurpose/internal/engine"
	"github.com/roach88/worldpurpose/internal/ledger"
	"github.com/roach88/worldpurpose/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	As     string // optional - filter to one caller
	CallID string // optional - a single entry
}

// TraceEntry is one journaled call and its receipt.
type TraceEntry struct {
	Seq        int64             `json:"seq"`
	CallID     string            `json:"call_id"`
	TxToken    string            `json:"tx_token"`
	Action     string            `json:"action"`
	Caller     string            `json:"caller"`
	Args       map[string]string `json:"args,omitempty"`
	OutputCase string            `json:"output_case"`
	Result     map[string]string `json:"result,omitempty"`
	ReceiptSeq int64             `json:"receipt_seq"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Caller   string       `json:"caller,omitempty"`
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Calls     int            `json:"calls"`
	Succeeded int            `json:"succeeded"`
	Rejected  int            `json:"rejected"`
	ByCase    map[string]int `json:"by_case"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal",
		Long: `Show journaled calls and their receipts in seq order.

Only state-changing calls (set, withdraw) are journaled, including the
rejected ones.

Examples:
  worldpurpose trace --db ./worldpurpose.db
  worldpurpose trace --db ./worldpurpose.db --as alice
  worldpurpose trace --db ./worldpurpose.db --call <call-id> --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "filter to calls made by this identity")
	cmd.Flags().StringVar(&opts.CallID, "call", "", "show a single call by ID")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Config.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var entries []store.Entry
	switch {
	case opts.CallID != "":
		entry, err := st.Entry(ctx, opts.CallID)
		if errors.Is(err, store.ErrNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("call not found: %s", opts.CallID))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		entries = []store.Entry{entry}
	case opts.As != "":
		entries, err = st.EntriesByCaller(ctx, opts.As)
	default:
		entries, err = st.Entries(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := TraceResult{
		Caller:   opts.As,
		Timeline: make([]TraceEntry, 0, len(entries)),
		Stats:    TraceStats{ByCase: make(map[string]int)},
	}
	for _, e := range entries {
		te := TraceEntry{
			Seq:        e.Call.Seq,
			CallID:     e.Call.ID,
			TxToken:    e.Call.TxToken,
			Action:     string(e.Call.Action),
			Caller:     e.Call.Caller,
			Args:       formatObject(e.Call.Args.SortedKeys(), e.Call.Args.Str, opts),
			OutputCase: e.Receipt.OutputCase,
			Result:     formatObject(e.Receipt.Result.SortedKeys(), e.Receipt.Result.Str, opts),
			ReceiptSeq: e.Receipt.Seq,
		}
		result.Timeline = append(result.Timeline, te)

		result.Stats.Calls++
		result.Stats.ByCase[te.OutputCase]++
		if e.Receipt.Succeeded() {
			result.Stats.Succeeded++
		} else {
			result.Stats.Rejected++
		}
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// formatObject renders string values, converting wei amounts to the
// configured units.
func formatObject(keys []string, get func(string) (string, bool), opts *TraceOptions) map[string]string {
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		s, ok := get(k)
		if !ok {
			continue
		}
		if amountKeys[k] || k == engine.ArgStake {
			if a, err := ledger.ParseWei(s); err == nil {
				s = opts.Config.FormatAmount(a)
			}
		}
		out[k] = s
	}
	return out
}

// outputTraceJSON outputs the trace as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	return writeJSON(cmd.OutOrStdout(), okResponse(result))
}

// outputTraceText outputs the trace as a timeline.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if len(result.Timeline) == 0 {
		if result.Caller != "" {
			fmt.Fprintf(w, "No calls found for: %s\n", result.Caller)
		} else {
			fmt.Fprintln(w, "No entries found in journal.")
		}
		return nil
	}

	fmt.Fprintln(w, "Timeline:")
	for _, e := range result.Timeline {
		status := "✓"
		if e.OutputCase != "Success" {
			status = "✗"
		}
		fmt.Fprintf(w, "  [%d] %s %s by %s%s -> %s\n",
			e.Seq, status, e.Action, e.Caller, formatPairs(e.Args), e.OutputCase)
		if verbose {
			fmt.Fprintf(w, "       call %s\n", e.CallID)
			if len(e.Result) > 0 {
				fmt.Fprintf(w, "       result%s\n", formatPairs(e.Result))
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d calls, %d succeeded, %d rejected\n",
		result.Stats.Calls, result.Stats.Succeeded, result.Stats.Rejected)
	return nil
}

func formatPairs(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, m[k])
	}
	return b.String()
}
