package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/worldpurpose/internal/engine"
	"github.com/roach88/worldpurpose/internal/ir"
	"github.com/roach88/worldpurpose/internal/ledger"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsAddr string

	// Registry receives the engine metrics. If nil, a fresh registry is used.
	Registry *prometheus.Registry
}

// CallLine is one line of run input. Stake is in configured units.
type CallLine struct {
	Action  string `json:"action"`
	As      string `json:"as"`
	Purpose string `json:"purpose,omitempty"`
	Stake   string `json:"stake,omitempty"`
}

// RunLineResult is one line of run output.
type RunLineResult struct {
	Line    int          `json:"line"`
	Receipt *ReceiptView `json:"receipt,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply a stream of calls through the engine",
		Long: `Replay the journal, start the single-writer engine loop and apply
one call per JSON line read from stdin. One JSON result is written per
input line. Stops at end of input or on SIGINT/SIGTERM.

Input lines:
  {"action":"setPurpose","as":"alice","purpose":"Plant a tree","stake":"0.1"}
  {"action":"withdraw","as":"alice"}
  {"action":"getBalance","as":"alice"}
  {"action":"getCurrentPurpose"}

Exit codes:
  0 - Every line was applied (rejections included)
  1 - One or more lines could not be applied
  2 - Command error (database errors, etc.)

Example:
  worldpurpose run --db ./worldpurpose.db < calls.jsonl
  worldpurpose run --db ./worldpurpose.db --metrics-addr :9090 < calls.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	logger := opts.Logger

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics := engine.NewMetrics(reg)

	sess, err := openSession(ctx, opts.RootOptions, engine.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr, reg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer stop()
		logger.Info("serving metrics", "addr", opts.MetricsAddr)
	}

	eng := sess.engine
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	logger.Info("engine started", "db", opts.Config.DBPath, "entries", sess.entries)

	failed, readErr := submitLines(ctx, eng, cmd.InOrStdin(), cmd.OutOrStdout(), opts)

	eng.Stop()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	logger.Info("engine stopped gracefully")

	if readErr != nil {
		return WrapExitError(ExitCommandError, "failed to read input", readErr)
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d line(s) failed", failed))
	}
	return nil
}

// submitLines submits one call per input line and writes one result per line.
// It returns the number of lines that could not be applied. Lines may be of
// any length.
func submitLines(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer, opts *RunOptions) (int, error) {
	encoder := json.NewEncoder(out)
	reader := bufio.NewReader(in)
	failed := 0
	lineNo := 0

	for ctx.Err() == nil {
		raw, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return failed, readErr
		}
		if len(raw) > 0 {
			lineNo++
		}

		if line := bytes.TrimRight(raw, "\r\n"); len(line) > 0 {
			res := RunLineResult{Line: lineNo}
			call, err := parseCallLine(line, opts.RootOptions)
			if err == nil {
				var rcpt ir.Receipt
				rcpt, err = eng.Submit(ctx, call)
				if err == nil {
					view := newReceiptView(call, rcpt, opts.Config)
					res.Receipt = &view
				}
			}
			if err != nil {
				res.Error = err.Error()
				failed++
			}
			if err := encoder.Encode(res); err != nil {
				return failed, err
			}
		}

		if readErr != nil {
			return failed, nil
		}
	}
	return failed, nil
}

func parseCallLine(raw []byte, opts *RootOptions) (ir.Call, error) {
	var line CallLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return ir.Call{}, fmt.Errorf("invalid JSON: %w", err)
	}

	caller := ledger.Identity(line.As)
	switch ir.Action(line.Action) {
	case ir.ActionSetPurpose:
		stake, err := opts.Config.ParseAmount(line.Stake)
		if err != nil {
			return ir.Call{}, fmt.Errorf("invalid stake: %w", err)
		}
		return engine.SetPurposeCall(caller, line.Purpose, stake), nil
	case ir.ActionWithdraw:
		return engine.WithdrawCall(caller), nil
	case ir.ActionGetBalance:
		return engine.BalanceCall(caller), nil
	case ir.ActionGetCurrentPurpose:
		return engine.CurrentPurposeCall(caller), nil
	default:
		return ir.Call{}, fmt.Errorf("unknown action %q", line.Action)
	}
}

// serveMetrics serves reg on addr and returns a function that shuts the
// server down.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
