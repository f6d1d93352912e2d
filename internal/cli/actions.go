package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/worldpurpose/internal/engine"
	"github.com/roach88/worldpurpose/internal/ir"
	"github.com/roach88/worldpurpose/internal/ledger"
)

// ActionOptions holds flags shared by the ledger action commands.
type ActionOptions struct {
	*RootOptions
	As    string // calling identity
	Stake string // set only, in configured units
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <purpose>",
		Short: "Stake on a new purpose",
		Long: `Replace the current purpose by staking strictly more than its owner.

The stake is locked while the purpose is yours and becomes withdrawable
once someone outbids you. You cannot replace your own purpose.

Exit codes:
  0 - Purpose set
  1 - Call rejected (see output case)
  2 - Command error (bad flags, database errors, etc.)

Examples:
  worldpurpose set "Plant a tree" --as alice --stake 0.1
  worldpurpose set "Clean the river" --as bob --stake 110000000000000000 --units wei`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			stake, err := opts.Config.ParseAmount(opts.Stake)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --stake", err)
			}
			return applyCall(cmd, opts.RootOptions, engine.SetPurposeCall(ledger.Identity(opts.As), args[0], stake))
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "calling identity (required)")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().StringVar(&opts.Stake, "stake", "", "amount to stake (required)")
	_ = cmd.MarkFlagRequired("stake")

	return cmd
}

// NewWithdrawCommand creates the withdraw command.
func NewWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw everything not backing the current purpose",
		Long: `Pay out the caller's withdrawable balance.

Examples:
  worldpurpose withdraw --as alice`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			return applyCall(cmd, opts.RootOptions, engine.WithdrawCall(ledger.Identity(opts.As)))
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "calling identity (required)")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show an identity's balance",
		Long: `Show the total balance held for an identity and the part of it
that can be withdrawn now.

Examples:
  worldpurpose balance --as alice
  worldpurpose balance --as alice --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			return applyCall(cmd, opts.RootOptions, engine.BalanceCall(ledger.Identity(opts.As)))
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "identity to inspect (required)")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

// NewCurrentCommand creates the current command.
func NewCurrentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the current purpose",
		Long: `Show the current purpose, its owner and the investment backing it.

Examples:
  worldpurpose current
  worldpurpose current --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			return applyCall(cmd, opts.RootOptions, engine.CurrentPurposeCall(ledger.Identity(opts.As)))
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "calling identity (optional)")

	return cmd
}

// applyCall replays the journal, applies one call and prints its receipt.
func applyCall(cmd *cobra.Command, opts *RootOptions, call ir.Call) error {
	ctx := commandContext(cmd)

	sess, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			opts.Logger.Error("error closing database", "error", closeErr)
		}
	}()

	rcpt, err := sess.engine.Apply(ctx, call)
	if err != nil {
		if engine.IsInvalidCall(err) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s call", call.Action), err)
		}
		return engineExit(fmt.Sprintf("%s failed", call.Action), err)
	}

	return writeReceipt(cmd.OutOrStdout(), opts.Format, newReceiptView(call, rcpt, opts.Config))
}
