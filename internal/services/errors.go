package services

import (
	"errors"
	"fmt"
)

// Error kinds returned by the services. Handlers map them to HTTP statuses
// with errors.Is; infrastructure failures are wrapped with oops and map to 500.
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("user not authenticated")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCode        = errors.New("invalid reset code or email")
	ErrNotificationFailed = errors.New("notification failed")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
