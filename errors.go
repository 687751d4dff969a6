package agbridge

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by how they should be handled.
type ErrorCategory string

const (
	// ErrorTransient indicates the error is temporary and the operation can be retried.
	// Examples: optimistic-concurrency conflicts, store connection resets.
	ErrorTransient ErrorCategory = "transient"

	// ErrorPermanent indicates the error is not recoverable through retry.
	// Examples: corrupt session state, runtime failures.
	ErrorPermanent ErrorCategory = "permanent"

	// ErrorUserInput indicates the client sent a request that must be corrected.
	ErrorUserInput ErrorCategory = "user_input"
)

// RUN_ERROR codes reported to AG-UI clients.
const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeSession      = "SESSION_ERROR"
	CodeAgent        = "AGENT_ERROR"
	CodeCancelled    = "CANCELLED"
)

// CategorizedError is an error that provides information about how it should be handled.
type CategorizedError interface {
	error
	Category() ErrorCategory
	Retryable() bool // convenience: returns true if Category == ErrorTransient
	Code() string    // RUN_ERROR code, empty if unspecified
}

// Error is a categorized error with metadata for error handling decisions.
type Error struct {
	Msg     string
	Cat     ErrorCategory
	RunCode string // RUN_ERROR code
	Cause   error  // underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.Cat
}

// Retryable returns true if the error is transient and can be retried.
func (e *Error) Retryable() bool {
	return e.Cat == ErrorTransient
}

// Code returns the RUN_ERROR code attached to the error.
func (e *Error) Code() string {
	return e.RunCode
}

// NewTransientError creates a transient error that can be retried.
func NewTransientError(msg string, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorTransient, RunCode: CodeSession, Cause: cause}
}

// NewPermanentError creates a permanent error that should not be retried.
func NewPermanentError(msg, code string, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorPermanent, RunCode: code, Cause: cause}
}

// NewUserInputError creates an error indicating an invalid client request.
func NewUserInputError(msg string, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorUserInput, RunCode: CodeInvalidInput, Cause: cause}
}

// IsTransient returns true if the error is categorized as transient.
// It checks if the error or any wrapped error implements CategorizedError.
func IsTransient(err error) bool {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == ErrorTransient
	}
	return false
}

// IsUserInput returns true if the error is categorized as user input error.
func IsUserInput(err error) bool {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == ErrorUserInput
	}
	return false
}

// CodeOf maps an error to the RUN_ERROR code sent to the client.
// Cancellation wins over any attached code; uncategorized errors are
// attributed to the agent runtime.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancelled
	}
	var ce CategorizedError
	if errors.As(err, &ce) && ce.Code() != "" {
		return ce.Code()
	}
	return CodeAgent
}
