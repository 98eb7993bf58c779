package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation marks every rejected input.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrNotFound marks an unknown account or voucher.
	ErrNotFound = errors.New("accounting: not found")
	// ErrConcurrency marks a voucher number collision that survived the retry.
	ErrConcurrency = errors.New("accounting: concurrent voucher numbering")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: entry is not balanced")
	// ErrPaymentMismatch indicates a merged pair with differing payment method or reference.
	ErrPaymentMismatch = errors.New("accounting: payment types or reference numbers do not match")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: voucher requires at least two lines")
	// ErrInvalidAmount indicates a zero or negative amount.
	ErrInvalidAmount = errors.New("accounting: amount must be positive")
	// ErrUnknownAccount indicates a line references an account that does not exist.
	ErrUnknownAccount = errors.New("accounting: account does not exist")
	// ErrMediatorMissing indicates no mediator account could be found.
	ErrMediatorMissing = errors.New("accounting: mediator account not configured")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrInvalidInput wraps struct validation failures.
	ErrInvalidInput = errors.New("accounting: invalid input")
	// ErrInvalidRange indicates a report window whose end precedes its start.
	ErrInvalidRange = errors.New("accounting: invalid date range")
)

// ValidationError describes a rejected request. Discrepancy is set for unbalanced batches.
type ValidationError struct {
	Reason      error
	Detail      string
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Discrepancy decimal.Decimal
}

// Invalid builds a ValidationError for reason with an optional detail.
func Invalid(reason error, detail string) *ValidationError {
	return &ValidationError{Reason: reason, Detail: detail}
}

// Unbalanced builds the error returned when debit and credit totals differ.
func Unbalanced(debit, credit decimal.Decimal) *ValidationError {
	diff := debit.Sub(credit).Abs()
	return &ValidationError{
		Reason:      ErrUnbalanced,
		Detail:      fmt.Sprintf("total debit (%s) must equal total credit (%s), difference %s", debit.StringFixed(2), credit.StringFixed(2), diff.StringFixed(2)),
		TotalDebit:  debit,
		TotalCredit: credit,
		Discrepancy: diff,
	}
}

func (e *ValidationError) Error() string {
	reason := ErrValidation
	if e.Reason != nil {
		reason = e.Reason
	}
	if e.Detail == "" {
		return reason.Error()
	}
	return reason.Error() + ": " + e.Detail
}

// Unwrap exposes both ErrValidation and the specific reason.
func (e *ValidationError) Unwrap() []error {
	if e.Reason == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Reason}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("accounting: %s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConcurrencyError reports the voucher number that could not be claimed.
type ConcurrencyError struct {
	Kind   string
	Number string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("accounting: %s voucher number %s already taken", e.Kind, e.Number)
}

func (e *ConcurrencyError) Unwrap() error { return ErrConcurrency }
