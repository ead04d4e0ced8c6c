package service

import (
	"errors"
)

var (
	// ErrDeviceNotFound covers both a missing device and one owned by someone
	// else; callers cannot tell the two apart.
	ErrDeviceNotFound = errors.New("device not found")

	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")

	ErrValidation = errors.New("validation failed")
)

// ValidationError carries a message that is safe to return to clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(msg string) error {
	return &ValidationError{Message: msg}
}
