package config

import "time"

// Default values for configuration fields.
const (
	// Engine defaults
	DefaultTickInterval       = 2 * time.Second
	DefaultLocalActor         = "self"
	DefaultOverrideCapability = "override"
	DefaultLimitedCapability  = "limited"

	// Store defaults
	DefaultStoreBackend     = "file"
	DefaultStoreFilePath    = "data/policies.yaml"
	DefaultStoreSQLitePath  = "data/policies.db"
	DefaultStoreDebounce    = 100 * time.Millisecond
	DefaultStoreBusyTimeout = 5 * time.Second

	// Audit defaults
	DefaultAuditEnabled       = true
	DefaultAuditBackend       = "sqlite"
	DefaultAuditPath          = "data/audit.db"
	DefaultAuditAsyncBuffer   = 1000
	DefaultAuditWriteTimeout  = 5 * time.Second
	DefaultAuditRetentionDays = 30
	DefaultAuditPruneSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsAddress     = "127.0.0.1:9464"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "tether"
	DefaultMetricsSubsystem   = "engine"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingServiceName = "tether"
	DefaultTracingTimeout     = 10 * time.Second
)

// DefaultCallbackDurationBuckets are the histogram buckets for lifecycle
// callback durations, in seconds.
var DefaultCallbackDurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}

// NewDefaultConfig returns a configuration with every default applied.
// Boolean sections that default to true are switched on here because a
// zero-valued bool cannot be told apart from an explicit false.
func NewDefaultConfig() *Config {
	cfg := newBaseConfig()
	ApplyDefaults(cfg)
	return cfg
}

// newBaseConfig sets only the fields ApplyDefaults cannot recover from a
// zero value. Defaults that depend on other fields, such as the store path
// for the chosen backend, are left for ApplyDefaults.
func newBaseConfig() *Config {
	cfg := &Config{}
	cfg.Audit.Enabled = DefaultAuditEnabled
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsAddress
	cfg.Telemetry.Tracing.Insecure = true
	return cfg
}

// ApplyDefaults fills zero-valued fields with their default values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Engine defaults
	if cfg.Engine.TickInterval == 0 {
		cfg.Engine.TickInterval = DefaultTickInterval
	}
	if cfg.Engine.LocalActor == "" {
		cfg.Engine.LocalActor = DefaultLocalActor
	}
	if cfg.Engine.OverrideCapability == "" {
		cfg.Engine.OverrideCapability = DefaultOverrideCapability
	}
	if cfg.Engine.LimitedCapability == "" {
		cfg.Engine.LimitedCapability = DefaultLimitedCapability
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.Path == "" {
		switch cfg.Store.Backend {
		case "sqlite":
			cfg.Store.Path = DefaultStoreSQLitePath
		case "file":
			cfg.Store.Path = DefaultStoreFilePath
		}
	}
	if cfg.Store.Debounce == 0 {
		cfg.Store.Debounce = DefaultStoreDebounce
	}
	if cfg.Store.BusyTimeout == 0 {
		cfg.Store.BusyTimeout = DefaultStoreBusyTimeout
	}

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = DefaultAuditPath
	}
	if cfg.Audit.AsyncBuffer == 0 {
		cfg.Audit.AsyncBuffer = DefaultAuditAsyncBuffer
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = DefaultAuditWriteTimeout
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = DefaultAuditRetentionDays
	}
	if cfg.Audit.PruneSchedule == "" {
		cfg.Audit.PruneSchedule = DefaultAuditPruneSchedule
	}

	// Authority defaults
	if cfg.Authority.Roles == nil {
		cfg.Authority.Roles = make(map[string]string)
	}
	if cfg.Authority.Capabilities == nil {
		cfg.Authority.Capabilities = make(map[string]CapabilityConfig)
	}

	// Logging defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}

	// Metrics defaults
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.CallbackDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.CallbackDurationBuckets = append([]float64(nil), DefaultCallbackDurationBuckets...)
	}

	// Tracing defaults
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
}
