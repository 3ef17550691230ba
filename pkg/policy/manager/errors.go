package manager

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicatePolicy indicates a definition ID is already registered.
	ErrDuplicatePolicy = errors.New("duplicate policy")

	// ErrUnknownPolicy indicates no definition is registered for an ID.
	ErrUnknownPolicy = errors.New("unknown policy")

	// ErrInvalidDefinition indicates a definition failed validation.
	ErrInvalidDefinition = errors.New("invalid policy definition")
)

// RegistryError represents an error that occurred during registry operations.
// This includes registration failures and duplicate policy IDs.
type RegistryError struct {
	// PolicyID is the ID of the policy involved in the error
	PolicyID string

	// Operation is the operation that failed (e.g., "register", "unregister")
	Operation string

	// Message describes the registry error
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *RegistryError) Error() string {
	if e.PolicyID != "" {
		return fmt.Sprintf("registry error for policy %q during %s: %s", e.PolicyID, e.Operation, e.Message)
	}
	return fmt.Sprintf("registry error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *RegistryError) Unwrap() error {
	return e.Cause
}

// SyncError collects the per-policy failures of one Sync. Policies that
// failed do not prevent the others from being reconciled.
type SyncError struct {
	Errors []error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("sync failed: %v", e.Errors[0])
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("sync failed for %d policies: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap returns the collected errors.
func (e *SyncError) Unwrap() []error {
	return e.Errors
}
