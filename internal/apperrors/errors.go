// Package apperrors defines the coded error taxonomy shared by the
// repository, service and handler layers.
//
// Codes map to HTTP statuses at the boundary:
//
//	VALIDATION_ERROR -> 400
//	NOT_FOUND        -> 404
//	INVALID_STATE    -> 409
//	CONFLICT         -> 409
//	INTERNAL         -> 500
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeInvalidState Code = "INVALID_STATE"
	CodeConflict     Code = "CONFLICT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInternal     Code = "INTERNAL"
)

// Error is a coded application error. Wrapping preserves the cause for
// errors.Is / errors.As.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// InvalidInput reports a validation failure on a named field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf("%s: %s", field, message)}
}

// InvalidState reports a state-machine transition that is not allowed
// from the item's current state.
func InvalidState(message string) *Error {
	return &Error{Code: CodeInvalidState, Message: message}
}

// Conflict reports a lost optimistic-concurrency race: the item's state
// changed between read and write. Callers are expected to refetch and retry.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// NotFound reports an absent resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// CodeOf extracts the code from err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error to the status the REST boundary should return.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
