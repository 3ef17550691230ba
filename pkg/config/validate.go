package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "engine.tick_interval").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// levelNames are the access level names accepted in authority settings.
// Kept in sync with authority.ParseLevel.
var levelNames = map[string]bool{
	"self":      true,
	"clubowner": true,
	"owner":     true,
	"lover":     true,
	"mistress":  true,
	"whitelist": true,
	"friend":    true,
	"public":    true,
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateAuthority(&cfg.Authority)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError

	if cfg.TickInterval < 0 {
		errs = append(errs, FieldError{Field: "engine.tick_interval", Message: "tick interval must be positive"})
	}
	if cfg.LocalActor == "" {
		errs = append(errs, FieldError{Field: "engine.local_actor", Message: "local actor is required"})
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite", "file":
		if cfg.Path == "" {
			errs = append(errs, FieldError{Field: "store.path", Message: fmt.Sprintf("path is required for %s backend", cfg.Backend)})
		}
	default:
		errs = append(errs, FieldError{Field: "store.backend", Message: fmt.Sprintf("invalid backend %q (must be memory, sqlite, or file)", cfg.Backend)})
	}

	if cfg.Watch && cfg.Backend != "file" {
		errs = append(errs, FieldError{Field: "store.watch", Message: "watch is only supported by the file backend"})
	}
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{Field: "store.debounce", Message: "debounce must not be negative"})
	}

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.Path == "" {
			errs = append(errs, FieldError{Field: "audit.path", Message: "path is required for sqlite backend"})
		}
	default:
		errs = append(errs, FieldError{Field: "audit.backend", Message: fmt.Sprintf("invalid backend %q (must be memory or sqlite)", cfg.Backend)})
	}

	if cfg.AsyncBuffer < 1 {
		errs = append(errs, FieldError{Field: "audit.async_buffer", Message: "async buffer must be at least 1"})
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{Field: "audit.retention_days", Message: "retention days must not be negative"})
	}
	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{Field: "audit.prune_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}

	return errs
}

func validateAuthority(cfg *AuthorityConfig) []FieldError {
	var errs []FieldError

	for actor, level := range cfg.Roles {
		if !levelNames[strings.ToLower(level)] {
			errs = append(errs, FieldError{Field: "authority.roles." + actor, Message: fmt.Sprintf("unknown access level %q", level)})
		}
	}

	for name, capCfg := range cfg.Capabilities {
		field := "authority.capabilities." + name
		if !levelNames[strings.ToLower(capCfg.Min)] {
			errs = append(errs, FieldError{Field: field + ".min", Message: fmt.Sprintf("unknown access level %q", capCfg.Min)})
		}
		if capCfg.Floor != "" && !levelNames[strings.ToLower(capCfg.Floor)] {
			errs = append(errs, FieldError{Field: field + ".floor", Message: fmt.Sprintf("unknown access level %q", capCfg.Floor)})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("invalid level %q", cfg.Logging.Level)})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("invalid format %q", cfg.Logging.Format)})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0 and 1"})
	}

	return errs
}
