package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrStorageUnavailable is matched by every error caused by the storage
// medium: closed database, I/O failure, lock timeout, full disk.
// Callers must surface it; a scan that cannot be persisted is never dropped
// silently.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrInvalidRecord indicates a record that violates the queue's content
// rules (empty container or shipment id). It is not a storage failure.
var ErrInvalidRecord = errors.New("invalid record")

// Error is a storage failure for a named store operation.
type Error struct {
	// Op is the store operation that failed ("append", "peek", ...).
	Op string

	// Err is the underlying driver error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageUnavailable, e.Op, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrStorageUnavailable.
func (e *Error) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// wrap classifies a driver error for op. Constraint violations are content
// errors and map to ErrInvalidRecord; everything else is a medium failure.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidRecord, err)
	}
	return &Error{Op: op, Err: err}
}
