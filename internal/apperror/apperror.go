// Package apperror defines the error taxonomy shared by the persistence layer
// and the HTTP surface.
//
// Every error produced here is an *AppError wrapping one of the sentinel
// values below, so callers branch with errors.Is and extract the message or
// offending field with errors.As. Driver errors (constraint violations, lost
// connections) are never converted into an AppError; they travel up wrapped
// with %w and keep their original identity.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrMassAssignment    = errors.New("mass assignment")
	ErrMissingConnection = errors.New("missing connection")
	ErrConfiguration     = errors.New("configuration error")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // sentinel
	Message string // human-readable message
	Field   string // column or input field, when one is to blame
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ModelNotFound is returned by singular fetches that resolve to no row.
func ModelNotFound(model string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("No query results for model [%s].", model),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// MassAssignment reports a column rejected while bulk-filling a totally
// guarded model. Field carries the rejected column.
func MassAssignment(key string) *AppError {
	return &AppError{
		Err:     ErrMassAssignment,
		Message: fmt.Sprintf("Mass assignment error: %s", key),
		Field:   key,
	}
}

// MissingConnection is raised when a model is constructed and no connection
// has been injected or registered process-wide.
func MissingConnection(message string) *AppError {
	if message == "" {
		message = "Connection object is missing."
	}
	return &AppError{
		Err:     ErrMissingConnection,
		Message: message,
	}
}

func Configuration(message string) *AppError {
	return &AppError{
		Err:     ErrConfiguration,
		Message: message,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means the caller presented no valid credentials.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
