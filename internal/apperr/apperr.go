// Package apperr defines the error taxonomy shared across orchmesh's
// components, so every layer returns a value the hub boundary can
// pattern-match on with errors.As instead of inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a semantic error category. Names are not HTTP status
// codes and carry no transport assumption.
type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodePreconditionFail Code = "PRECONDITION_FAILED"
	CodeTimeout          Code = "TIMEOUT"
	CodeCancelled        Code = "CANCELLED"
	CodeAdapterFailure   Code = "ADAPTER_FAILURE"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// Error is the concrete error type carried across package boundaries.
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

// Unwrap enables errors.Is / errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, apperr.New(CodeNotFound, "")) style matching
// that only compares codes, ignoring message and wrapped cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New creates a bare Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that carries an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// InvalidArgument builds a CodeInvalidArgument error.
func InvalidArgument(message string) *Error { return New(CodeInvalidArgument, message) }

// NotFound builds a CodeNotFound error for a resource kind and id, e.g.
// NotFound("session", "nope") -> "Session nope not found".
func NotFound(resource, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s %s not found", capitalize(resource), id))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// PermissionDenied builds a CodePermissionDenied error.
func PermissionDenied(message string) *Error { return New(CodePermissionDenied, message) }

// PreconditionFailed builds a CodePreconditionFail error.
func PreconditionFailed(message string) *Error { return New(CodePreconditionFail, message) }

// Timeout builds a CodeTimeout error.
func Timeout(message string) *Error { return New(CodeTimeout, message) }

// Cancelled builds a CodeCancelled error.
func Cancelled(message string) *Error { return New(CodeCancelled, message) }

// AdapterFailure wraps a collaborator (provider/tool/transport) failure.
func AdapterFailure(message string, err error) *Error {
	return Wrap(CodeAdapterFailure, message, err)
}

// Internal wraps an unexpected failure, always meant to be logged with a
// correlation id by the caller before being surfaced generically.
func Internal(message string, err error) *Error {
	return Wrap(CodeInternal, message, err)
}

// CodeOf extracts the Code from err, defaulting to CodeInternal when err
// is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
