// Package errors provides structured error types for the metagate gateway.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the HTTP surface and the CLI
//   - Machine-readable error codes for programmatic handling
//   - A stable mapping from errors to response status codes
//   - Error wrapping with context preservation
//
// # Taxonomy
//
// Three kinds of failure flow through the gateway:
//
//   - Client errors: an [*Error] whose [Code] maps to a 4xx status (bad
//     identifier, not found, unauthorized, provider not configured).
//   - Upstream errors: an [*UpstreamError] wrapping a non-2xx response from an
//     external call. The request executor retries these only when the status
//     is 429.
//   - Internal errors: anything else, including [*Error] values carrying
//     [ErrCodeInternal] for logic faults.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidIdentifier, "empty id in %q", raw)
//	if errors.Is(err, errors.ErrCodeInvalidIdentifier) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to fetch %s", url)
//
//	// Map to a response status
//	w.WriteHeader(errors.StatusOf(err))
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeInvalidIdentifier Code = "INVALID_IDENTIFIER"

	// Resource errors
	ErrCodeNotFound      Code = "NOT_FOUND"
	ErrCodeNotConfigured Code = "NOT_CONFIGURED"

	// Authentication errors
	ErrCodeUnauthorized Code = "UNAUTHORIZED"
	ErrCodeForbidden    Code = "FORBIDDEN"

	// Network errors
	ErrCodeNetwork     Code = "NETWORK_ERROR"
	ErrCodeUpstream    Code = "UPSTREAM_ERROR"
	ErrCodeRateLimited Code = "RATE_LIMITED"
	ErrCodeCancelled   Code = "CANCELLED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Status returns the HTTP status code a caller-facing error with this code
// should produce. Codes that are not caller-facing map to 500.
func (c Code) Status() int {
	switch c {
	case ErrCodeInvalidInput, ErrCodeInvalidIdentifier:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotConfigured:
		return http.StatusNotImplemented
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeCancelled:
		return 499
	case ErrCodeNetwork, ErrCodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status associated with the error's code.
func (e *Error) Status() int {
	return e.Code.Status()
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Cancelled wraps a context error so that both errors.Is(err, context.Canceled)
// and Is(err, ErrCodeCancelled) hold.
func Cancelled(cause error) *Error {
	return &Error{Code: ErrCodeCancelled, Message: "operation cancelled", Cause: cause}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsClient reports whether err is a caller-facing error, i.e. an *Error whose
// code maps to a 4xx status.
func IsClient(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	s := e.Status()
	return s >= 400 && s < 500
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// StatusOf maps an error to the status code the transport layer should answer
// with. Client errors keep their own status, upstream errors reflect the
// upstream status (5xx collapses to 502), and everything else is a 500.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		switch {
		case ue.Status >= 500:
			return http.StatusBadGateway
		case ue.Status >= 400:
			return ue.Status
		default:
			return http.StatusBadGateway
		}
	}
	if IsClient(err) {
		return GetCode(err).Status()
	}
	return http.StatusInternalServerError
}
