package config

import "time"

// Config is the root configuration structure for Tether.
// It contains all configuration sections for the rule engine, the policy
// record store, the audit trail, authority settings, and telemetry.
type Config struct {
	// Engine contains rule lifecycle engine configuration.
	Engine EngineConfig `yaml:"engine"`

	// Store contains policy record store configuration.
	Store StoreConfig `yaml:"store"`

	// Audit contains audit trail configuration.
	Audit AuditConfig `yaml:"audit"`

	// Authority contains role and capability configuration.
	Authority AuthorityConfig `yaml:"authority"`

	// Telemetry contains observability configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig contains configuration for the rule lifecycle engine.
type EngineConfig struct {
	// TickInterval is the cadence at which every active policy is ticked.
	// Default: 2s
	TickInterval time.Duration `yaml:"tick_interval"`

	// LocalActor is the identifier of the actor whose behavior policies govern.
	// Default: "self"
	LocalActor string `yaml:"local_actor"`

	// OverrideCapability names the capability whose holders bypass enforcement.
	// Empty disables override checks.
	// Default: "override"
	OverrideCapability string `yaml:"override_capability"`

	// LimitedCapability names the capability required to edit policies
	// whose condition limit is "limited".
	// Default: "limited"
	LimitedCapability string `yaml:"limited_capability"`

	// DegradeOnError marks a policy degraded after a lifecycle callback fails.
	// Default: true
	DegradeOnError *bool `yaml:"degrade_on_error"`
}

// StoreConfig contains configuration for the policy record store.
type StoreConfig struct {
	// Backend selects the record store implementation.
	// Options: "memory", "sqlite", "file"
	// Default: "file"
	Backend string `yaml:"backend"`

	// Path is the database file (sqlite) or YAML document (file).
	// Default: "data/policies.yaml"
	Path string `yaml:"path"`

	// Watch enables reloading of the file backend when it changes on disk.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce is the quiet period before a file change triggers a reload.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// BusyTimeout is how long sqlite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuditConfig contains configuration for the audit trail.
type AuditConfig struct {
	// Enabled controls whether trigger and attempt events are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the audit storage implementation.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Path is the sqlite database file for audit events.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// AsyncBuffer is the size of the recorder's write queue.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds how long Record waits for queue space.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RetentionDays is how long events are kept. 0 keeps them forever.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is a cron expression for retention pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// AuthorityConfig contains role assignments and capability settings.
type AuthorityConfig struct {
	// Roles maps actor identifiers to access level names
	// (e.g. "owner", "lover", "friend").
	Roles map[string]string `yaml:"roles"`

	// Capabilities maps capability names to their permission settings.
	Capabilities map[string]CapabilityConfig `yaml:"capabilities"`
}

// CapabilityConfig is the permission setting for one capability.
type CapabilityConfig struct {
	// Min is the minimum access level required (e.g. "owner").
	Min string `yaml:"min"`

	// Self grants the local actor access regardless of Min.
	Self bool `yaml:"self"`

	// Floor is the lowest level Min may be set to. Empty means "public".
	Floor string `yaml:"floor"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is where the metrics endpoint is served.
	// Empty disables the HTTP endpoint while still collecting.
	// Example: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "tether"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "engine"
	Subsystem string `yaml:"subsystem"`

	// CallbackDurationBuckets defines histogram buckets for lifecycle
	// callback duration (seconds).
	// Default: [0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5]
	CallbackDurationBuckets []float64 `yaml:"callback_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is the service name in traces.
	// Default: "tether"
	ServiceName string `yaml:"service_name"`

	// Timeout bounds exporter calls.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// DegradeOnErrorEnabled reports whether failed callbacks degrade a policy.
func (e EngineConfig) DegradeOnErrorEnabled() bool {
	return e.DegradeOnError == nil || *e.DegradeOnError
}
