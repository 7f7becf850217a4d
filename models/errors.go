package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an update or delete references a missing id.
	ErrNotFound = errors.New("record not found")
	// ErrBackendUnavailable is returned when both the remote and the local store failed a read.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrInvalidCredentials is returned by authentication.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated is returned when an operation needs a session user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrForbidden is returned when the session user's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition is returned by the forward-only report status policy.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports a structurally invalid entity.
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Message)
}

func invalid(entity, field, message string) error {
	return &ValidationError{Entity: entity, Field: field, Message: message}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
