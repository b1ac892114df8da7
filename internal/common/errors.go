// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Ingestion errors. Malformed input is rejected before the cascade.
	ErrInvalidInput = errors.New("invalid transaction input")

	// Classification errors. An AI failure degrades to a confidence-0
	// classification routed to human review; it never blocks a batch.
	ErrClassificationFailed = errors.New("classification failed")
	ErrUnparsableResponse   = errors.New("unparsable inference response")

	// Posting errors.
	ErrPostingFailed = errors.New("ledger posting failed")

	// Approval errors.
	ErrDecisionConflict = errors.New("decision already recorded")
	ErrReasonRequired   = errors.New("rejection requires a reason")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable marks an error as transient.
func Retryable(err error) error {
	return &RetryableError{Err: err, Retryable: true}
}

// Permanent marks an error as non-transient so retry loops stop early.
func Permanent(err error) error {
	return &RetryableError{Err: err, Retryable: false}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}
	return false
}

// InputError describes a malformed transaction rejected at ingestion.
type InputError struct {
	Field  string
	Detail string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidInput, e.Field, e.Detail)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// NewInputError creates an ingestion rejection for a specific field.
func NewInputError(field, detail string) error {
	return &InputError{Field: field, Detail: detail}
}
