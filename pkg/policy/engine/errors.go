package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors
var (
	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine closed")

	// ErrUnknownPolicy indicates no definition is registered for an ID.
	ErrUnknownPolicy = errors.New("unknown policy")

	// ErrAlreadyActive indicates the policy is already in the active set.
	ErrAlreadyActive = errors.New("policy already active")

	// ErrNotActive indicates the policy is not in the active set.
	ErrNotActive = errors.New("policy not active")

	// ErrInvalidTransition indicates a lifecycle transition that the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrEditDenied indicates the actor may not edit the policy.
	ErrEditDenied = errors.New("policy edit denied")
)

// FieldError describes one invalid field of policy data.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError reports stored policy data that was replaced by defaults.
// It is logged and never fails the operation that found it.
type ValidationError struct {
	PolicyID string
	Section  string // custom_data or internal_data
	Fields   []FieldError
	Cause    error
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "policy %s: invalid %s", e.PolicyID, e.Section)
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", f.Field, f.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new ValidationError.
func NewValidationError(policyID, section string, fields []FieldError) *ValidationError {
	return &ValidationError{
		PolicyID: policyID,
		Section:  section,
		Fields:   fields,
	}
}

// LifecycleCallbackError wraps a failure inside a policy callback.
type LifecycleCallbackError struct {
	PolicyID string
	Callback string // init, load, tick, state_change, unload or deferred
	Panic    any    // Recovered panic value, if the callback panicked
	Cause    error
}

// Error returns the error message.
func (e *LifecycleCallbackError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("policy %s: %s callback panicked: %v", e.PolicyID, e.Callback, e.Panic)
	}
	return fmt.Sprintf("policy %s: %s callback failed: %v", e.PolicyID, e.Callback, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *LifecycleCallbackError) Unwrap() error {
	return e.Cause
}

// TransitionError reports a rejected state machine transition.
type TransitionError struct {
	PolicyID string
	From     Phase
	To       Phase
}

// Error returns the error message.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("policy %s: %s -> %s: %v", e.PolicyID, e.From, e.To, ErrInvalidTransition)
}

// Unwrap returns ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
