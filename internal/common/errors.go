// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Input errors.
	ErrValidation   = errors.New("validation failed")
	ErrInvalidInput = errors.New("invalid input")

	// Classification errors. These are recovered locally and never fail a batch.
	ErrClassificationTimeout  = errors.New("classification timed out")
	ErrClassificationProvider = errors.New("classification provider error")
	ErrCircuitOpen            = errors.New("classification circuit open")

	// Cache errors. Corruption indicates a concurrency bug and is fatal.
	ErrCacheCorruption = errors.New("category cache corrupted")

	// Rule errors.
	ErrInvalidRule      = errors.New("invalid category rule")
	ErrConflictingRules = errors.New("conflicting category rules")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// FieldViolation describes one failed constraint on an input field.
type FieldViolation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError reports a malformed transaction. It is attached to the
// rejected record rather than failing the batch.
type ValidationError struct {
	TransactionID string
	Fields        []FieldViolation
	Index         int
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Field, f.Rule))
	}
	id := e.TransactionID
	if id == "" {
		id = "<missing id>"
	}
	return fmt.Sprintf("transaction %s at index %d: invalid fields: %s", id, e.Index, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ReasonCode explains why a transaction ended up uncategorized.
type ReasonCode string

// Reason codes recorded on source=none results.
const (
	ReasonTimeout         ReasonCode = "timeout"
	ReasonProviderError   ReasonCode = "provider_error"
	ReasonInvalidResponse ReasonCode = "invalid_response"
	ReasonCircuitOpen     ReasonCode = "circuit_open"
	ReasonRateLimited     ReasonCode = "rate_limited"
	ReasonCanceled        ReasonCode = "canceled"
	ReasonNegativeCache   ReasonCode = "negative_cache"
	ReasonNoFallback      ReasonCode = "no_fallback"
)

// ClassificationError is a recoverable fallback failure with a reason code.
type ClassificationError struct {
	Err    error
	Reason ReasonCode
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// NewClassificationError wraps err with the sentinel matching reason.
func NewClassificationError(reason ReasonCode, err error) error {
	var sentinel error
	switch reason {
	case ReasonTimeout:
		sentinel = ErrClassificationTimeout
	case ReasonCircuitOpen:
		sentinel = ErrCircuitOpen
	case ReasonCanceled:
		sentinel = context.Canceled
	default:
		sentinel = ErrClassificationProvider
	}
	if err == nil {
		return &ClassificationError{Reason: reason, Err: sentinel}
	}
	if errors.Is(err, sentinel) {
		return &ClassificationError{Reason: reason, Err: err}
	}
	return &ClassificationError{Reason: reason, Err: fmt.Errorf("%w: %w", sentinel, err)}
}

// ReasonOf extracts the reason code from a classification failure.
func ReasonOf(err error) ReasonCode {
	var classErr *ClassificationError
	if errors.As(err, &classErr) {
		return classErr.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	return ReasonProviderError
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	// Check for specific retryable errors
	if errors.Is(err, ErrRateLimit) {
		return true
	}

	// Check for retryable error type
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
