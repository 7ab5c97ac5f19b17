package model

import "errors"

// Error kinds returned by the merge, lock and rollup paths. Callers match
// them with errors.Is; context is attached with %w wrapping.
var (
	ErrInvalidReference       = errors.New("invalid reference")
	ErrBudgetLocked           = errors.New("budget is locked")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrSourceUnavailable      = errors.New("ledger source unavailable")

	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
)

// Code is a machine-readable error code for API payloads.
type Code string

const (
	CodeUnknown                Code = "UNKNOWN"
	CodeInvalidReference       Code = "INVALID_REFERENCE"
	CodeBudgetLocked           Code = "BUDGET_LOCKED"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeSourceUnavailable      Code = "SOURCE_UNAVAILABLE"
	CodeInvalidAmount          Code = "INVALID_AMOUNT"
	CodeInvalidRequest         Code = "INVALID_REQUEST"
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeNotFound               Code = "NOT_FOUND"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrInvalidReference, CodeInvalidReference},
	{ErrBudgetLocked, CodeBudgetLocked},
	{ErrConcurrentModification, CodeConcurrentModification},
	{ErrSourceUnavailable, CodeSourceUnavailable},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrNotFound, CodeNotFound},
}

// CodeOf maps an error to its code, CodeUnknown if it is not a domain error.
func CodeOf(err error) Code {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

// Retryable reports whether the caller may re-read and resubmit.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrSourceUnavailable)
}
