// Package apperror defines the application's error taxonomy.
//
// Every failure that reaches a caller is one of the sentinel kinds below,
// wrapped in an *AppError carrying a message that is safe to show to users.
// The underlying cause (a SQL error, an S3 error, a model API error) is kept
// in Cause for logging and never appears in Error().
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrStorage         = errors.New("storage failure")
	ErrCaption         = errors.New("caption generation failed")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: internal cause, for logs only
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// DuplicateEmail reports a signup against an email that is already
// registered. It is a Conflict, so HTTP handlers map it to 409.
func DuplicateEmail() *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: "User with this email already exists",
		Field:   "email",
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

// Unauthenticated is returned for bad credentials. The message must stay
// generic: it is the same for an unknown email and a wrong password.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// StorageFailure wraps an object-store or index failure. message is what the
// user sees ("Failed to save image"); cause is only logged.
func StorageFailure(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Message: message,
		Cause:   cause,
	}
}

// CaptionFailed wraps any transport or model error from the caption engine.
func CaptionFailed(cause error) *AppError {
	return &AppError{
		Err:     ErrCaption,
		Message: "Failed to generate caption",
		Cause:   cause,
	}
}

// CauseOf returns the internal cause recorded on the first *AppError in
// err's chain, or err itself when there is none.
func CauseOf(err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Cause != nil {
		return appErr.Cause
	}
	return err
}
