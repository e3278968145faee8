package common

import "errors"

// Canonical error codes shared across handlers.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeValidation   = "VALIDATION"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL"
	CodeUnavailable  = "UPSTREAM_UNAVAILABLE"
	CodeCancelled    = "PAYMENT_CANCELLED"
	CodeTechnical    = "PAYMENT_FAILED"
	CodeUnsupported  = "UNSUPPORTED_METHOD"
	CodeRateLimited  = "RATE_LIMITED"
	CodeReplay       = "IDEMPOTENT_REPLAY"
	CodeNotConfigure = "NOT_CONFIGURED"
)

// AppError carries a machine-readable code alongside the HTTP status a
// handler should render.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
