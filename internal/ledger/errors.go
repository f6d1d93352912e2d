package ledger

import (
	"errors"
	"fmt"
)

// Code identifies why the ledger rejected an operation.
// Codes double as output case names in the journal.
type Code string

const (
	CodeEmptyPurpose      Code = "EmptyPurpose"
	CodeNonPositiveStake  Code = "NonPositiveStake"
	CodeSelfOverride      Code = "SelfOverride"
	CodeInsufficientStake Code = "InsufficientStake"
	CodeNothingToWithdraw Code = "NothingToWithdraw"
	CodeTransferFailed    Code = "TransferFailed"
	CodeOverflow          Code = "Overflow"
)

// RejectError is returned when the ledger refuses an operation.
// A rejected operation leaves the ledger untouched.
type RejectError struct {
	Code    Code
	Message string

	// Err is the cause, set only for TransferFailed.
	Err error
}

func (e *RejectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

// Is matches any RejectError with the same code, so wrapped transfer
// failures still satisfy errors.Is(err, ErrTransferFailed).
func (e *RejectError) Is(target error) bool {
	t, ok := target.(*RejectError)
	return ok && t.Code == e.Code
}

var (
	ErrEmptyPurpose      = &RejectError{Code: CodeEmptyPurpose, Message: "You need to set a purpose message"}
	ErrNonPositiveStake  = &RejectError{Code: CodeNonPositiveStake, Message: "You need to invest more than zero"}
	ErrSelfOverride      = &RejectError{Code: CodeSelfOverride, Message: "You cannot override your own purpose"}
	ErrInsufficientStake = &RejectError{Code: CodeInsufficientStake, Message: "You need to invest more than the previous purpose owner"}
	ErrNothingToWithdraw = &RejectError{Code: CodeNothingToWithdraw, Message: "You don't have enough withdrawable balance"}
	ErrTransferFailed    = &RejectError{Code: CodeTransferFailed, Message: "Withdraw failed"}
	ErrOverflow          = &RejectError{Code: CodeOverflow, Message: "balance would overflow"}
)

func transferFailed(cause error) *RejectError {
	return &RejectError{Code: CodeTransferFailed, Message: ErrTransferFailed.Message, Err: cause}
}

// IsRejection reports whether err is (or wraps) a ledger rejection.
func IsRejection(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}

// CodeOf returns the rejection code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}
