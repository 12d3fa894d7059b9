package store

import (
	"errors"
	"fmt"
)

// StorageError reports a durable-storage fault. It is returned
// synchronously to the caller and never retried by the store.
type StorageError struct {
	// Op names the failed store operation ("insert", "merge", ...).
	Op string

	// Err is the underlying driver or I/O error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorage returns true if err is or wraps a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}
