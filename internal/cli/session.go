package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/worldpurpose/internal/engine"
	"github.com/roach88/worldpurpose/internal/store"
)

// session is an engine rebuilt from the journal at the configured path.
type session struct {
	store   *store.Store
	engine  *engine.Engine
	entries int
}

// openSession opens the journal, replays it and returns a live engine that
// appends to it. Payouts are logged.
func openSession(ctx context.Context, opts *RootOptions, extra ...engine.EngineOption) (*session, error) {
	st, err := store.Open(opts.Config.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	entries, err := st.Entries(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	engineOpts := []engine.EngineOption{
		engine.WithLogger(opts.Logger),
		engine.WithTransferer(engine.LogTransferer{Logger: opts.Logger}),
	}
	eng := engine.New(st, append(engineOpts, extra...)...)

	if err := eng.Replay(ctx, entries); err != nil {
		st.Close()
		return nil, engineExit("journal does not replay", err)
	}

	opts.Logger.Debug("session ready",
		"db", opts.Config.DBPath,
		"entries", len(entries),
	)
	return &session{store: st, engine: eng, entries: len(entries)}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
