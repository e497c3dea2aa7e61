// Package apierrors defines the registry's error taxonomy. Every failure a
// caller can act on is one of four codes: NOT_FOUND, CONFLICT,
// VALIDATION_ERROR, or INVALID_STATE. Anything else is treated as an
// internal failure.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes carried on API errors.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidState = "INVALID_STATE"
)

// Error is a structured error with a machine-readable code.
type Error struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// NotFound reports an unknown resource identifier.
func NotFound(resource string, id any) *Error {
	return &Error{
		Code:    CodeNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s not found: %v", resource, id),
	}
}

// Conflict reports a uniqueness or concurrent-update violation.
func Conflict(format string, args ...any) *Error {
	return &Error{
		Code:    CodeConflict,
		Status:  http.StatusConflict,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validation reports malformed or missing input.
func Validation(format string, args ...any) *Error {
	return &Error{
		Code:    CodeValidation,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf(format, args...),
	}
}

// InvalidState reports a mutation attempted against an entity whose current
// state forbids it (locked links, completed confirmations, closed trials).
func InvalidState(format string, args ...any) *Error {
	return &Error{
		Code:    CodeInvalidState,
		Status:  http.StatusUnprocessableEntity,
		Message: fmt.Sprintf(format, args...),
	}
}

func is(err error, code string) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool { return is(err, CodeNotFound) }

// IsConflict reports whether err carries the CONFLICT code.
func IsConflict(err error) bool { return is(err, CodeConflict) }

// IsValidation reports whether err carries the VALIDATION_ERROR code.
func IsValidation(err error) bool { return is(err, CodeValidation) }

// IsInvalidState reports whether err carries the INVALID_STATE code.
func IsInvalidState(err error) bool { return is(err, CodeInvalidState) }

// IsAPIError reports whether err is one of the taxonomy errors. Errors
// outside the taxonomy are treated as transient or internal failures.
func IsAPIError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr)
}

// StatusOf maps an error to an HTTP status code. Unrecognized errors map to
// 500.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}
