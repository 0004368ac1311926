package executor

import (
	"context"
	"errors"
	"fmt"
)

// ValidationError reports a request the executor refuses to run.
type ValidationError struct {
	// Field names the offending request field, e.g. "pageSize".
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("VALIDATION: %s: %s", e.Field, e.Message)
}

// ExecutionError reports a storage failure while running a query.
type ExecutionError struct {
	// Op is the backend operation that failed ("count" or "select").
	Op string

	// VersionID is the version being queried.
	VersionID string

	// Retryable is true when running the same query again may succeed,
	// such as after a timeout or a busy database.
	Retryable bool

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("EXECUTION: %s version %s: %v", e.Op, e.VersionID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// IsValidationError returns true if err is a *ValidationError.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsExecutionError returns true if err is an *ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// IsRetryable returns true if err is an *ExecutionError marked retryable.
func IsRetryable(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee) && ee.Retryable
}

// retryable classifies backend errors. Deadlines are retryable; plain
// cancellation is not. Backends mark transient failures by returning an
// error with a Retryable() bool method.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}
