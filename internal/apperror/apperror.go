// Package apperror defines the error taxonomy shared by the service and
// handler layers.
//
// Services return *AppError values wrapping one of the sentinel errors below.
// Handlers translate the sentinel to an HTTP status with errors.Is, so the
// service layer never knows about status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrValidation      = errors.New("Validation Error")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrSignature       = errors.New("invalid signature")
	ErrExternal        = errors.New("external service error")
)

type AppError struct {
	Err     error  // sentinel from the list above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Unauthenticated is returned when the request carries no valid session.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// StateConflict reports a transition attempted on a record that has already
// left the expected state, e.g. "payment request abc is already approved".
func StateConflict(resource, id, state string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s %s is already %s", resource, id, state),
	}
}

// ConflictMessage is a Conflict with a caller-supplied message.
func ConflictMessage(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// SignatureInvalid is returned by webhook verification before any parsing.
func SignatureInvalid(provider string) *AppError {
	return &AppError{
		Err:     ErrSignature,
		Message: fmt.Sprintf("%s webhook signature could not be verified", provider),
	}
}

// External wraps a failure from a third-party call. The cause stays
// reachable through errors.Is / errors.As via the joined chain.
func External(service string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrExternal, cause),
		Message: fmt.Sprintf("%s request failed", service),
	}
}
