package oui

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure cases
var (
	// ErrInvalidMAC indicates the MAC address format is invalid
	ErrInvalidMAC = errors.New("invalid MAC address format")

	// ErrVendorNotFound indicates no vendor was found for the given MAC
	ErrVendorNotFound = errors.New("vendor not found")

	// ErrEmptyMAC indicates an empty MAC address was provided
	ErrEmptyMAC = errors.New("empty MAC address")

	// ErrNoSourceFile indicates the registry CSV path is not configured
	ErrNoSourceFile = errors.New("OUI source file not configured")
)

// LoadError wraps registry file errors with context
type LoadError struct {
	Path string // File that failed to load
	Err  error  // Underlying error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("oui load %s failed: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
