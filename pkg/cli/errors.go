package cli

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitConfig     = 2
	ExitValidation = 3
)

// ConfigError represents an error loading or validating configuration.
type ConfigError struct {
	Path    string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error in %s: %s", e.Path, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationFailedError reports that a validate run found problems.
// The problems themselves have already been printed.
type ValidationFailedError struct {
	Invalid int
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed: %d invalid item(s)", e.Invalid)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(path string, cause error) *ConfigError {
	msg := "invalid configuration"
	if cause != nil {
		msg = cause.Error()
	}
	return &ConfigError{
		Path:    path,
		Message: msg,
		Cause:   cause,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	var valErr *ValidationFailedError
	if errors.As(err, &valErr) {
		return ExitValidation
	}
	return ExitFailure
}
