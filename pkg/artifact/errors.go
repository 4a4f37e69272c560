package artifact

import (
	"errors"
	"fmt"
)

// Error codes surfaced by engine operations.
const (
	// ErrCodeDescriptor marks input rejected before any engine work
	// started: missing credentials or an unparseable image reference.
	ErrCodeDescriptor = "INVALID_DESCRIPTOR"
	// ErrCodeConnection marks an endpoint that could not be reached or
	// authenticated. The operation never started.
	ErrCodeConnection = "CONNECTION_FAILED"
	// ErrCodeEngine marks a failure reported by the engine for a
	// submitted operation.
	ErrCodeEngine = "ENGINE_FAILED"
	// ErrCodeInterrupted marks an operation abandoned because its context
	// ended while waiting for the engine.
	ErrCodeInterrupted = "INTERRUPTED"
)

// Error is the failure type returned by engine operations.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an operation error without an underlying cause.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithCause creates an operation error wrapping an underlying cause.
func NewErrorWithCause(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsCode reports whether err is an operation Error carrying the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
