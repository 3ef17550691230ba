package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// Values from the file are layered over NewDefaultConfig, so keys that are
// absent keep their defaults. The result is validated before it is returned.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes a YAML document and applies defaults to anything left
// empty. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := newBaseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention TETHER_SECTION_FIELD (e.g., TETHER_ENGINE_TICK_INTERVAL).
// Environment variables always take precedence over file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed values are ignored and the file value is kept.
func applyEnvOverrides(cfg *Config) {
	// Engine overrides
	envDuration("TETHER_ENGINE_TICK_INTERVAL", &cfg.Engine.TickInterval)
	envString("TETHER_ENGINE_LOCAL_ACTOR", &cfg.Engine.LocalActor)
	envString("TETHER_ENGINE_OVERRIDE_CAPABILITY", &cfg.Engine.OverrideCapability)
	envString("TETHER_ENGINE_LIMITED_CAPABILITY", &cfg.Engine.LimitedCapability)
	if val := os.Getenv("TETHER_ENGINE_DEGRADE_ON_ERROR"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Engine.DegradeOnError = &b
		}
	}

	// Store overrides
	envString("TETHER_STORE_BACKEND", &cfg.Store.Backend)
	envString("TETHER_STORE_PATH", &cfg.Store.Path)
	envBool("TETHER_STORE_WATCH", &cfg.Store.Watch)
	envDuration("TETHER_STORE_DEBOUNCE", &cfg.Store.Debounce)

	// Audit overrides
	envBool("TETHER_AUDIT_ENABLED", &cfg.Audit.Enabled)
	envString("TETHER_AUDIT_BACKEND", &cfg.Audit.Backend)
	envString("TETHER_AUDIT_PATH", &cfg.Audit.Path)
	envInt("TETHER_AUDIT_ASYNC_BUFFER", &cfg.Audit.AsyncBuffer)
	envDuration("TETHER_AUDIT_WRITE_TIMEOUT", &cfg.Audit.WriteTimeout)
	envInt("TETHER_AUDIT_RETENTION_DAYS", &cfg.Audit.RetentionDays)
	envString("TETHER_AUDIT_PRUNE_SCHEDULE", &cfg.Audit.PruneSchedule)

	// Telemetry overrides
	envString("TETHER_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TETHER_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TETHER_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TETHER_TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	envBool("TETHER_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TETHER_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv("TETHER_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
