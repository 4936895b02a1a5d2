package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for each failure kind. Services return *Error values
// wrapping one of these; callers branch with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("resource not found")
	ErrConflict        = errors.New("conflict")
	ErrStateTransition = errors.New("invalid state transition")
	ErrConcurrency     = errors.New("concurrency conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrInternal        = errors.New("internal error")
)

// Error is an application error carrying a machine-readable code, an HTTP
// status, and optional structured details. Internal causes stay out of the
// JSON body.
type Error struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates a validation error with optional field details.
func Validation(message string, details map[string]string) *Error {
	return &Error{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Validationf creates a validation error from a format string.
func Validationf(format string, args ...interface{}) *Error {
	return Validation(fmt.Sprintf(format, args...), nil)
}

// NotFound creates a not found error. Records belonging to another tenant
// are reported with this error too, never as a permission failure.
func NotFound(resource, id string) *Error {
	return &Error{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Conflict creates a conflict error (duplicate, insufficient stock,
// occupied bed, overpayment).
func Conflict(message string) *Error {
	return &Error{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// Conflictf creates a conflict error from a format string.
func Conflictf(format string, args ...interface{}) *Error {
	return Conflict(fmt.Sprintf(format, args...))
}

// StateTransition creates an error for a disallowed status change.
func StateTransition(entity, from, to string) *Error {
	return &Error{
		Err:        ErrStateTransition,
		Message:    fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		Code:       "INVALID_TRANSITION",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]string{"entity": entity, "from": from, "to": to},
	}
}

// Concurrency creates an error for a transaction that kept conflicting
// after retries. Clients may safely retry the request.
func Concurrency(message string) *Error {
	return &Error{
		Err:        ErrConcurrency,
		Message:    message,
		Code:       "CONCURRENCY_CONFLICT",
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return &Error{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error {
	return &Error{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

// Internal wraps an unexpected error. The cause is logged, not serialized.
func Internal(err error) *Error {
	return &Error{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap adds context to an error, preserving an existing *Error's code and
// status.
func Wrap(err error, message string) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return &Error{
			Err:        appErr,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			Code:       appErr.Code,
			HTTPStatus: appErr.HTTPStatus,
			Details:    appErr.Details,
		}
	}
	return &Error{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}
