package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the router.
type ErrorCode string

// Startup-time error codes. These abort the process before any task is
// accepted.
const (
	ErrConfig               ErrorCode = "CONFIG_ERROR"
	ErrDelegationConfig     ErrorCode = "DELEGATION_CONFIG_ERROR"
	ErrDuplicateCapability  ErrorCode = "DUPLICATE_CAPABILITY"
)

// Per-task and per-branch error codes. These are captured in result
// objects and never crash the process.
const (
	ErrNoCapability   ErrorCode = "NO_CAPABILITY"
	ErrTokenExchange  ErrorCode = "TOKEN_EXCHANGE_FAILED"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrCanceled       ErrorCode = "CANCELED"
	ErrUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrTaskNotFound   ErrorCode = "TASK_NOT_FOUND"
	ErrOverloaded     ErrorCode = "OVERLOADED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
