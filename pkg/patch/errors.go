package patch

import (
	"errors"
	"fmt"
)

var (
	// ErrPatchConflict indicates a patch could not be applied to the
	// operation's current source.
	ErrPatchConflict = errors.New("patch conflict")

	// ErrNoSource indicates the host exposes no source text for the operation.
	ErrNoSource = errors.New("operation has no source")
)

// ConflictError reports a patch whose search pattern does not match the
// operation's current source.
type ConflictError struct {
	Op     string // Host operation name
	Search string // Pattern that was not found
	Cause  error  // Underlying error, if any
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("patch conflict [op=%s, search=%q]: %v", e.Op, e.Search, e.Cause)
	}
	return fmt.Sprintf("patch conflict [op=%s]: search pattern %q not found", e.Op, e.Search)
}

// Unwrap returns the underlying cause error.
func (e *ConflictError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrPatchConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrPatchConflict
}

// NewConflictError creates a new ConflictError.
func NewConflictError(op, search string, cause error) *ConflictError {
	return &ConflictError{
		Op:     op,
		Search: search,
		Cause:  cause,
	}
}
