package errors

import (
	"errors"
	"fmt"
)

// Domain error types for the review gate

var (
	// ErrInvalidConfig indicates the round configuration failed validation
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)

// Reviewer-execution errors. These are always absorbed into a canonical
// Reject vote and never abort a round.

var (
	// ErrReviewerUnavailable indicates the executor could not be reached
	ErrReviewerUnavailable = errors.New("reviewer unavailable")

	// ErrReviewerTimeout indicates a reviewer exceeded its execution bound
	ErrReviewerTimeout = errors.New("reviewer timed out")

	// ErrMalformedOutput indicates reviewer output defeated every parse stage
	ErrMalformedOutput = errors.New("malformed reviewer output")
)

// Persistence errors. Best-effort: surfaced as round warnings, never fatal.

var (
	// ErrPersistence indicates a calibration or result write failed
	ErrPersistence = errors.New("persistence failure")

	// ErrScopeReleased indicates use of an already-released evidence scope
	ErrScopeReleased = errors.New("evidence scope released")
)

// Notification errors

var (
	// ErrNotifyFailed indicates the decision notification could not be emitted
	ErrNotifyFailed = errors.New("decision notification failed")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Helper functions

// New creates a new error from a message
func New(message string) error {
	return errors.New(message)
}

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
