// Package apierrors defines the error taxonomy for the API core and its
// mapping onto HTTP status codes.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error into one of the expected API outcomes.
type Code string

const (
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

// Error is a coded error carried from the engines up to the HTTP layer.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Unauthenticated builds an UNAUTHENTICATED error.
func Unauthenticated(message string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: message}
}

// Forbidden builds a FORBIDDEN error.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// NotFound builds a NOT_FOUND error.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// BadRequest builds a BAD_REQUEST error.
func BadRequest(message string) *Error {
	return &Error{Code: CodeBadRequest, Message: message}
}

// Conflict builds a CONFLICT error.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// Internal wraps an unexpected failure. The cause is preserved for logging but
// never serialized to the caller.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "internal server error", cause: cause}
}

// CodeOf extracts the code from an error, defaulting to INTERNAL for anything
// that is not an *Error.
func CodeOf(err error) Code {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error to its HTTP status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to expose to the caller. Internal
// failures are masked.
func PublicMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Code != CodeInternal {
		return apiErr.Message
	}
	return "internal server error"
}
