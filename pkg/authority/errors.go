package authority

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLevel is returned when parsing an undefined level name.
	ErrUnknownLevel = errors.New("unknown access level")

	// ErrUnknownCapability is returned when changing a capability that has
	// no setting.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrBelowFloor is returned when a minimum would be set below the
	// capability's floor.
	ErrBelowFloor = errors.New("minimum below capability floor")

	// ErrAccessDenied is returned when the actor lacks the authority for a change.
	ErrAccessDenied = errors.New("access denied")
)

// PermissionError reports a rejected permission change.
type PermissionError struct {
	Actor      string // Actor attempting the change
	Capability string // Capability being changed
	Cause      error  // Underlying reason
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission error [actor=%s, capability=%s]: %v", e.Actor, e.Capability, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *PermissionError) Unwrap() error {
	return e.Cause
}

// NewPermissionError creates a new PermissionError.
func NewPermissionError(actor, capability string, cause error) *PermissionError {
	return &PermissionError{
		Actor:      actor,
		Capability: capability,
		Cause:      cause,
	}
}
