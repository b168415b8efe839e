// Package apperr defines the error taxonomy shared by every layer of the
// service and its mapping to HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnauthorized means no authenticated identity is present.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeScopeRequired means a tenant-scoped operation ran without a tenant scope.
	CodeScopeRequired Code = "SCOPE_REQUIRED"
	// CodeNotFound covers genuine absence and rows owned by other tenants.
	CodeNotFound Code = "NOT_FOUND"
	// CodeForbidden means the caller is authenticated but lacks role or ownership.
	CodeForbidden Code = "FORBIDDEN"
	// CodeInvalidTransition means a conditional status update matched no row.
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	// CodeValidation means malformed input.
	CodeValidation Code = "VALIDATION"
	// CodeConflict means a uniqueness constraint rejected the write.
	CodeConflict Code = "CONFLICT"
	// CodeStorageFailure wraps any underlying store error.
	CodeStorageFailure Code = "STORAGE_FAILURE"
)

// HTTPStatus maps a code to the status returned to HTTP clients.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidTransition, CodeConflict:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Internal reports whether details of errors with this code must stay out of
// client responses.
func (c Code) Internal() bool {
	return c == CodeStorageFailure || c == CodeScopeRequired
}

// Error is the domain error type.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error around an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons; they match any error with the same code.
var (
	ErrUnauthorized      = New(CodeUnauthorized, "authentication required")
	ErrScopeRequired     = New(CodeScopeRequired, "tenant scope required")
	ErrNotFound          = New(CodeNotFound, "not found")
	ErrForbidden         = New(CodeForbidden, "forbidden")
	ErrInvalidTransition = New(CodeInvalidTransition, "invalid transition")
	ErrValidation        = New(CodeValidation, "validation failed")
	ErrConflict          = New(CodeConflict, "conflict")
	ErrStorageFailure    = New(CodeStorageFailure, "storage failure")
)

// Validation is a shorthand for a validation error with a message.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// NotFound is a shorthand for a not-found error naming the entity.
func NotFound(entity string) *Error {
	return New(CodeNotFound, entity+" not found")
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeStorageFailure for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStorageFailure
}
