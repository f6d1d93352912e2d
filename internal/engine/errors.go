package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by Submit once the engine has been stopped.
var ErrStopped = errors.New("engine stopped")

// RuntimeError represents an error detected by the engine itself, as opposed
// to a ledger rejection (which is a receipt, not an error).
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Seq and CallID locate the offending journal entry, when there is one.
	Seq    int64
	CallID string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidCall indicates an unknown action, missing caller or malformed args.
	ErrCodeInvalidCall RuntimeErrorCode = "INVALID_CALL"

	// ErrCodeReplayDivergence indicates a journaled receipt did not reproduce.
	ErrCodeReplayDivergence RuntimeErrorCode = "REPLAY_DIVERGENCE"

	// ErrCodeJournal indicates the journal rejected an append.
	ErrCodeJournal RuntimeErrorCode = "JOURNAL_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.CallID != "" {
		return fmt.Sprintf("%s: %s (seq=%d, call=%s)", e.Code, e.Message, e.Seq, e.CallID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidCall returns true if the error is an invalid call error.
func IsInvalidCall(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidCall
	}
	return false
}

// IsReplayDivergence returns true if the error is a replay divergence.
func IsReplayDivergence(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeReplayDivergence
	}
	return false
}

func invalidCall(format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidCall,
		Message: fmt.Sprintf(format, args...),
	}
}

// newDivergenceError reports a journal entry whose receipt did not reproduce.
func newDivergenceError(seq int64, callID, field, want, got string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeReplayDivergence,
		Message: fmt.Sprintf("%s differs on replay", field),
		Seq:     seq,
		CallID:  callID,
		Details: map[string]string{
			"want": want,
			"got":  got,
		},
	}
}
