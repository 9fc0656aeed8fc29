// Package domainerrors defines the coded error type surfaced to callers of
// the core services. Transport layers translate codes into HTTP statuses;
// conversational frontends translate them into user-facing messages.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeNotFound       Code = "not_found"
	CodeNotVerified    Code = "not_verified"
	CodeSessionExpired Code = "session_expired"
	CodeImmutableField Code = "immutable_field"
	CodeWindowClosed   Code = "window_closed"
	CodeNoPendingField Code = "no_pending_field"
	CodePersistFailed  Code = "persist_failed"
	CodeBadRequest     Code = "bad_request"
	CodeUnauthorized   Code = "unauthorized"
	CodeUnavailable    Code = "unavailable"
	CodeInternal       Code = "internal"
)

// Error carries a stable code alongside a human-readable message. The code is
// the contract; messages may change freely.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a cause so infrastructure detail survives for logs while the
// caller still matches on the code.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in a service.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the message from err without any wrapped cause detail,
// falling back to a generic message for unexpected errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps codes onto HTTP statuses for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotVerified, CodeSessionExpired, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeImmutableField:
		return http.StatusForbidden
	case CodeWindowClosed:
		return http.StatusConflict
	case CodeNoPendingField, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodePersistFailed, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
