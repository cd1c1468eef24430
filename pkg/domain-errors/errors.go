// Package domainerrors provides coded errors for the service layer.
//
// Services wrap sentinel/store errors into coded errors; the HTTP layer
// translates codes into status lines via pkg/platform/httputil. Codes are
// stable strings so they can double as machine-readable error identifiers
// on the wire.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of caller-facing failure.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeUnavailable  Code = "unavailable"
	CodeInternal     Code = "internal_error"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	code    Code
	message string
	cause   error
}

// New creates a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap creates a coded error that wraps cause.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the error's code.
func (e *Error) Code() Code { return e.code }

// Message returns the human-readable description without the code prefix.
func (e *Error) Message() string { return e.message }

// CodeOf extracts the code from err, walking the wrap chain.
// Unknown errors are classified as CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// MessageOf extracts the coded message from err, or a generic fallback.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.message
	}
	return "internal error"
}
