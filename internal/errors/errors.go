// Package errors provides coded errors shared by every layer of the service.
// The code decides how a failure is surfaced at the transport edge and
// whether the caller may retry (CONFLICT) or must not (VALIDATION, FORBIDDEN).
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for propagation policy and HTTP mapping.
type Code string

const (
	ErrCodeValidation Code = "VALIDATION"
	ErrCodeNotFound   Code = "NOT_FOUND"
	ErrCodeConflict   Code = "CONFLICT"
	ErrCodeForbidden  Code = "FORBIDDEN"
	ErrCodeInternal   Code = "INTERNAL"
)

// Error is a coded error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. The cause is kept
// for logging but never rendered to API clients when the code is INTERNAL.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing entity.
func NotFound(entity, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Conflict reports a state-guard violation. The caller should refresh state
// before retrying.
func Conflict(message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

// Forbidden reports that the caller lacks authority for the operation.
func Forbidden(message string) *Error {
	return &Error{Code: ErrCodeForbidden, Message: message}
}

// InvalidInput reports a validation failure on a named field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf("%s: %s", field, message)}
}

// CodeOf extracts the code from an error chain, defaulting to INTERNAL.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// MessageOf returns the client-safe message for an error chain. Internal
// causes are collapsed to a generic message so storage details never leak.
func MessageOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) && e.Code != ErrCodeInternal {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps an error chain to an HTTP status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Is delegates to the standard library for sentinel comparisons.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As delegates to the standard library.
func As(err error, target any) bool { return stderrors.As(err, target) }
