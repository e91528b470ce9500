package models

import (
	"errors"
	"fmt"
)

// Sentinel errors. Anything not matching one of these is an internal failure.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrSplitMismatch       = errors.New("split amounts do not add up to total")
	ErrConflict            = errors.New("conflict")
)

// ValidationError reports a single invalid or missing field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap makes errors.Is(err, ErrInvalidInput) true.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
