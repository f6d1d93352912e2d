package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/worldpurpose/internal/engine"
)

// Exit codes shared by every command.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // rejected call, failed scenario, journal that does not replay
	ExitCommandError = 2 // bad flags or input, database and journal errors
)

// codeScenariosFailed marks a failing test run. Every other JSON error code
// is a ledger output case or an engine error code.
const codeScenariosFailed = "SCENARIOS_FAILED"

// ExitError is a command failure with the exit code the process should use.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// engineExit wraps an error from the engine. A journal that does not replay
// is a failure of the ledger's history; anything else is a command error.
func engineExit(message string, err error) *ExitError {
	if engine.IsReplayDivergence(err) {
		return WrapExitError(ExitFailure, message, err)
	}
	return WrapExitError(ExitCommandError, message, err)
}

// CLIResponse is the envelope written by every command under --format json.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	CallID string    `json:"call_id,omitempty"` // single-call commands
}

// CLIError explains an error status.
type CLIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Seq     int64             `json:"seq,omitempty"` // offending journal entry
	Details map[string]string `json:"details,omitempty"`
}

func okResponse(data any) CLIResponse {
	return CLIResponse{Status: "ok", Data: data}
}

func errorResponse(data any, cliErr *CLIError) CLIResponse {
	return CLIResponse{Status: "error", Data: data, Error: cliErr}
}

// engineError describes an engine RuntimeError, keeping the journal
// position and the want/got details of a divergence.
func engineError(err error) *CLIError {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return &CLIError{
			Code:    string(re.Code),
			Message: re.Message,
			Seq:     re.Seq,
			Details: re.Details,
		}
	}
	return &CLIError{Code: "ERROR", Message: err.Error()}
}

// writeJSON writes resp indented, one document per command.
func writeJSON(w io.Writer, resp CLIResponse) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}
