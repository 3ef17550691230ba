package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord is returned when saving a record without an ID.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown store backend")
)

// StorageError wraps a failure of the underlying storage.
type StorageError struct {
	Op    string // Operation that failed (load, save, delete, list)
	ID    string // Record ID, if any
	Cause error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store %s [id=%s]: %v", e.Op, e.ID, e.Cause)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(op, id string, cause error) *StorageError {
	return &StorageError{Op: op, ID: id, Cause: cause}
}
