package storage

import (
	"context"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Sentinel errors forming the persistence failure taxonomy. Callers match
// with errors.Is; the concrete driver error stays wrapped underneath.
var (
	// ErrConflict indicates a constraint violation (duplicate key, FK).
	ErrConflict = errors.New("persistence conflict")

	// ErrTimeout indicates the database was busy or the context expired.
	ErrTimeout = errors.New("persistence timeout")

	// ErrCorrupt indicates the database file failed integrity checks.
	// Corruption is reported, never auto-repaired.
	ErrCorrupt = errors.New("persistence corruption")

	// ErrPoolClosed indicates the pool has been shut down.
	ErrPoolClosed = errors.New("connection pool is closed")
)

// StoreError wraps a database error with the failed operation.
type StoreError struct {
	Op   string // Operation that failed (e.g. "insert_wifi", "archive")
	Kind error  // One of the sentinel errors above, or nil for uncategorized
	Err  error  // Underlying driver error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	if e.Kind != nil {
		return e.Kind
	}
	return e.Err
}

// classify maps driver errors onto the persistence taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := errorKind(err)
	return &StoreError{Op: op, Kind: kind, Err: err}
}

func errorKind(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTimeout
	}

	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrConstraint:
			return ErrConflict
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return ErrTimeout
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return ErrCorrupt
		}
	}
	return nil
}

// retryable reports whether a write may be retried by the batch writer.
// Conflicts are permanent; busy/timeout errors are transient.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrCorrupt) {
		return false
	}
	return true
}
