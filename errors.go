package testfold

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that is not a test outcome:
// a bad manifest, an unreadable journal, a worker that could not launch.
// Runtime errors exit with a code outside the result bitmask.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// ResultError carries the exit-status bitmask of a completed run whose tests
// did not all pass.
type ResultError struct {
	Status  int
	Message string
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("run finished with problems (status %d): %s", e.Status, e.Message)
}

// NewResultError creates a new ResultError
func NewResultError(status int, message string) *ResultError {
	return &ResultError{Status: status, Message: message}
}

// AsResultError extracts a ResultError when err is or wraps one.
func AsResultError(err error) (*ResultError, bool) {
	var resultErr *ResultError
	if err != nil && errors.As(err, &resultErr) {
		return resultErr, true
	}
	return nil, false
}
