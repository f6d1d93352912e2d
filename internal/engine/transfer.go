package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/worldpurpose/internal/ledger"
)

// LogTransferer is the production payout: it records the payout in the log
// and always succeeds. Settlement happens outside this process.
type LogTransferer struct {
	Logger *slog.Logger
}

// Transfer implements ledger.Transferer.
func (t LogTransferer) Transfer(ctx context.Context, to ledger.Identity, amount ledger.Amount) error {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "payout",
		"to", string(to),
		"wei", amount.String(),
		"ether", amount.Ether(),
	)
	return nil
}
