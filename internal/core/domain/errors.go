package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for record construction and lookup failures.
var (
	// ErrInvalidRecord indicates a record is missing its required identifier.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError wraps validation errors with the offending field and value.
type ValidationError struct {
	Field string // Field that failed validation
	Value string // Invalid value
	Err   error  // Underlying error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
