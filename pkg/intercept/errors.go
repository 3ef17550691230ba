package intercept

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnknownOperation is returned when the host does not expose an operation.
	ErrUnknownOperation = errors.New("unknown host operation")

	// ErrNilInterceptor is returned when Install is called with a nil function.
	ErrNilInterceptor = errors.New("interceptor function is nil")

	// ErrCompilerMissing is returned when source is set for an operation
	// that has no compiler.
	ErrCompilerMissing = errors.New("no compiler registered for operation")
)

// InterceptorError wraps an error returned by an interceptor during a live
// host call. It is always returned to the caller of the host operation.
type InterceptorError struct {
	Op       string // Host operation name
	Priority int    // Priority of the failing interceptor
	Module   string // Module tag of the failing interceptor
	Cause    error  // Underlying error
}

// Error implements the error interface.
func (e *InterceptorError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("interceptor error [op=%s, priority=%d, module=%s]: %v", e.Op, e.Priority, e.Module, e.Cause)
	}
	return fmt.Sprintf("interceptor error [op=%s, priority=%d]: %v", e.Op, e.Priority, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *InterceptorError) Unwrap() error {
	return e.Cause
}

// NewInterceptorError creates a new InterceptorError.
func NewInterceptorError(op string, priority int, module string, cause error) *InterceptorError {
	return &InterceptorError{
		Op:       op,
		Priority: priority,
		Module:   module,
		Cause:    cause,
	}
}

// UnknownOperationError reports an invocation of an operation the host does
// not define.
type UnknownOperationError struct {
	Op string
}

// Error implements the error interface.
func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown host operation %q", e.Op)
}

// Is reports whether target is ErrUnknownOperation.
func (e *UnknownOperationError) Is(target error) bool {
	return target == ErrUnknownOperation
}
