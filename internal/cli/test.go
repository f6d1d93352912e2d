package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/worldpurpose/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool
	Filter string
}

// ScenarioReport is the outcome of one scenario file.
type ScenarioReport struct {
	File      string               `json:"file"`
	Name      string               `json:"name"`
	Pass      bool                 `json:"pass"`
	Calls     int                  `json:"calls"`
	Replayed  bool                 `json:"replayed"`
	Conserved bool                 `json:"conserved"`
	Golden    harness.GoldenStatus `json:"golden,omitempty"`
	Errors    []string             `json:"errors,omitempty"`
}

// SuiteReport is the outcome of a test run.
type SuiteReport struct {
	Scenarios []ScenarioReport `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *SuiteReport) add(s ScenarioReport) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run purpose auction scenarios against a scratch ledger",
		Long: `Run YAML scenarios against a fresh in-memory ledger.

Every scenario starts from an empty ledger with a fresh logical clock and a
fixed tx token. A scenario passes when each expect clause and final-state
assertion holds and its journal replays into the same ledger. The report also
says whether held funds plus payouts still equal the accepted stakes.

When <scenarios-dir>/golden/<file>.golden exists the trace must match it
byte for byte. --update rewrites the golden files from the current traces.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing directory, bad filter)

Examples:
  worldpurpose test ./scenarios
  worldpurpose test ./scenarios --filter "withdraw_*"
  worldpurpose test ./scenarios --update
  worldpurpose test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			return runSuite(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current traces")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files whose name matches this glob")

	return cmd
}

func runSuite(cmd *cobra.Command, opts *TestOptions, dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := harness.Discover(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	report := SuiteReport{Scenarios: []ScenarioReport{}}
	for _, file := range files {
		s := runScenarioFile(file, opts.Update)
		opts.Logger.Debug("scenario finished",
			"file", s.File, "pass", s.Pass, "calls", s.Calls, "golden", s.Golden)
		report.add(s)
	}

	if opts.Format == "json" {
		resp := okResponse(report)
		if report.Failed > 0 {
			resp = errorResponse(report, &CLIError{
				Code:    codeScenariosFailed,
				Message: fmt.Sprintf("%d of %d scenarios failed", report.Failed, report.Total),
			})
		}
		if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	} else {
		writeSuiteText(cmd.OutOrStdout(), report)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
	}
	return nil
}

// runScenarioFile loads, runs and golden-checks one file. A file that cannot
// be loaded or run is a failed scenario, not a command error.
func runScenarioFile(file string, update bool) ScenarioReport {
	report := ScenarioReport{File: file, Name: filepath.Base(file)}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		report.Errors = []string{fmt.Sprintf("load: %v", err)}
		return report
	}
	report.Name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		report.Errors = []string{fmt.Sprintf("run: %v", err)}
		return report
	}
	report.Calls = result.Calls()
	report.Replayed = result.Replayed
	report.Conserved = result.Conserved
	report.Errors = result.Errors

	report.Golden, err = harness.CheckGolden(file, scenario, result, update)
	switch {
	case err != nil:
		report.Errors = append(report.Errors, fmt.Sprintf("golden: %v", err))
	case report.Golden == harness.GoldenMismatch:
		report.Errors = append(report.Errors,
			fmt.Sprintf("trace differs from %s (run with --update to rewrite it)", harness.GoldenPath(file)))
	}

	report.Pass = len(report.Errors) == 0
	return report
}

func writeSuiteText(w io.Writer, report SuiteReport) {
	if report.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}

	for _, s := range report.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", mark, s.Name, scenarioNotes(s))
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Scenarios: %d passed, %d failed, %d total\n", report.Passed, report.Failed, report.Total)
	if report.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}

func scenarioNotes(s ScenarioReport) string {
	if s.Calls == 0 && !s.Replayed {
		return s.File
	}
	notes := []string{fmt.Sprintf("%d calls", s.Calls)}
	if s.Replayed {
		notes = append(notes, "replayed")
	} else {
		notes = append(notes, "replay diverged")
	}
	if !s.Conserved {
		notes = append(notes, "not conserved")
	}
	if s.Golden != "" && s.Golden != harness.GoldenNone {
		notes = append(notes, "golden "+string(s.Golden))
	}
	return strings.Join(notes, ", ")
}
