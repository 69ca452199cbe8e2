// Package apperror defines the domain error taxonomy shared by every layer.
//
// Services return *AppError values that wrap one of the sentinel errors below.
// Callers match on the sentinel with errors.Is, and HTTP handlers translate
// it into a status code (see handler/response.go). The Message is always safe
// to show to the user.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("Validation Error")
	ErrConflict       = errors.New("conflict")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrWrongAnswer    = errors.New("wrong answer")
	ErrUnknownSpecies = errors.New("unknown species type")
	ErrUnavailable    = errors.New("unavailable")
)

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying infrastructure error, never shown to users
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause so errors.Is
// works against either of them.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
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

// DuplicateAccount is returned by registration when the email is taken.
func DuplicateAccount(email string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("an account already exists for %s", email),
		Field:   "email",
	}
}

// InvalidCredentials deliberately does not say which half was wrong.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "incorrect email or password",
	}
}

func AccountNotFound(email string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("no account found for %s", email),
		Field:   "email",
	}
}

func WrongAnswer() *AppError {
	return &AppError{
		Err:     ErrWrongAnswer,
		Message: "the security answer does not match",
		Field:   "answer",
	}
}

// WeakPassword is a validation failure on the "password" field.
func WeakPassword(minLength int) *AppError {
	return ValidationFailed("password",
		fmt.Sprintf("password must be at least %d characters", minLength))
}

// UnknownSpeciesType should be unreachable from the UI, which only offers
// catalog keys. Seeing it in logs points at a client or data defect.
func UnknownSpeciesType(key string) *AppError {
	return &AppError{
		Err:     ErrUnknownSpecies,
		Message: fmt.Sprintf("unknown plant type %q", key),
		Field:   "type",
	}
}

// StorageFailure wraps a persistence error into the generic retryable message.
func StorageFailure(cause error) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: "could not save your changes, please try again",
		Cause:   cause,
	}
}

// ProviderFailure wraps an identity provider outage.
func ProviderFailure(cause error) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: "the account service is unavailable, please try again",
		Cause:   cause,
	}
}

// SessionExpired is returned when a login session was logged out or can no
// longer be restored.
func SessionExpired() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "your session has ended, please log in again",
	}
}

// IdentificationFailed is returned when the photo recognition service did
// not answer.
func IdentificationFailed(cause error) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: "could not identify the plant, please try again",
		Field:   "photo",
		Cause:   cause,
	}
}
