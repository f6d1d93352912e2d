package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/worldpurpose/internal/engine"
	"github.com/roach88/worldpurpose/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
}

// RecordView is the current purpose with its investment in configured units.
type RecordView struct {
	Owner      string `json:"owner"`
	Purpose    string `json:"purpose"`
	Investment string `json:"investment"`
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	Entries       int         `json:"entries"`
	LastSeq       int64       `json:"last_seq"`
	Deterministic bool        `json:"deterministic"`
	Current       *RecordView `json:"current,omitempty"`
	Held          string      `json:"held"`
	Holders       int         `json:"holders"`
	Divergence    string      `json:"divergence,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the journal and verify determinism",
		Long: `Replay the journal into a fresh ledger and verify every receipt.

Each journaled call is re-executed at its recorded seq. The command fails
if any receipt does not reproduce exactly. Withdrawals are not paid again.

Exit codes:
  0 - Journal is deterministic
  1 - Determinism verification failed (a receipt did not reproduce)
  2 - Command error (database not found, etc.)

Examples:
  worldpurpose replay --db ./worldpurpose.db
  worldpurpose replay --db ./worldpurpose.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			return runReplay(opts, cmd)
		},
	}

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Config.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	entries, err := st.Entries(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	lastSeq, err := st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := ReplayResult{
		Entries:       len(entries),
		LastSeq:       lastSeq,
		Deterministic: true,
	}

	eng := engine.New(nil, engine.WithLogger(opts.Logger))
	replayErr := eng.Replay(ctx, entries)
	if replayErr != nil {
		if !engine.IsReplayDivergence(replayErr) {
			return WrapExitError(ExitCommandError, "failed to replay journal", replayErr)
		}
		result.Deterministic = false
		result.Divergence = replayErr.Error()
	} else {
		l := eng.Ledger()
		if rec, ok := l.CurrentPurpose(); ok {
			result.Current = &RecordView{
				Owner:      string(rec.Owner),
				Purpose:    rec.Purpose,
				Investment: opts.Config.FormatAmount(rec.Investment),
			}
		}
		snap := l.Snapshot()
		for _, bal := range snap.Balances {
			if !bal.IsZero() {
				result.Holders++
			}
		}
		result.Held = opts.Config.FormatAmount(l.TotalHeld())
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result, replayErr)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON. A divergence is
// reported with the seq and want/got of the first entry that did not
// reproduce.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult, divergence error) error {
	response := okResponse(result)
	if divergence != nil {
		response = errorResponse(result, engineError(divergence))
	}
	if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if !result.Deterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.Entries == 0 {
		fmt.Fprintln(w, "No entries found in journal.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d entries (last seq %d)\n", result.Entries, result.LastSeq)
	fmt.Fprintln(w)

	if !result.Deterministic {
		fmt.Fprintf(w, "  %s\n", result.Divergence)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "✗ Determinism verification failed")
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}

	if result.Current != nil {
		fmt.Fprintf(w, "  Current: %q by %s (%s)\n", result.Current.Purpose, result.Current.Owner, result.Current.Investment)
	} else {
		fmt.Fprintln(w, "  Current: none")
	}
	if verbose {
		fmt.Fprintf(w, "  Held:    %s across %d identities\n", result.Held, result.Holders)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "✓ Journal verified deterministic")
	return nil
}
