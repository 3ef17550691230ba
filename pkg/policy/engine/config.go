package engine

import (
	"log/slog"
	"time"

	"mercator-hq/tether/pkg/audit"
	"mercator-hq/tether/pkg/authority"
	"mercator-hq/tether/pkg/conditions"
	"mercator-hq/tether/pkg/config"
	"mercator-hq/tether/pkg/store"
	"mercator-hq/tether/pkg/telemetry/metrics"
	"mercator-hq/tether/pkg/telemetry/tracing"
)

// Config contains configuration for the rule lifecycle engine.
type Config struct {
	// TickInterval is the cadence used by Start. The scheduler resolution
	// is one second.
	// Default: 2s.
	TickInterval time.Duration

	// LocalActor is the actor whose behavior policies govern.
	// Default: "self".
	LocalActor string

	// OverrideCapability names the capability whose holders are exempt
	// from enforcement. Empty disables override.
	// Default: "override".
	OverrideCapability string

	// LimitedCapability names the capability required to edit a policy
	// whose limit is "limited".
	// Default: "limited".
	LimitedCapability string

	// DegradeOnError marks a policy degraded when a callback fails.
	// Default: true.
	DegradeOnError bool

	// CategoryConditions are the default condition sets used by records
	// with UseGlobal set.
	CategoryConditions map[Category]*conditions.Set

	// Predicates are custom condition predicates available to every
	// policy. A policy's own predicates take precedence.
	Predicates map[string]conditions.Predicate
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:       2 * time.Second,
		LocalActor:         "self",
		OverrideCapability: "override",
		LimitedCapability:  "limited",
		DegradeOnError:     true,
	}
}

// FromConfig builds an engine configuration from the engine section.
func FromConfig(cfg config.EngineConfig) Config {
	out := DefaultConfig()
	if cfg.TickInterval > 0 {
		out.TickInterval = cfg.TickInterval
	}
	if cfg.LocalActor != "" {
		out.LocalActor = cfg.LocalActor
	}
	out.OverrideCapability = cfg.OverrideCapability
	out.LimitedCapability = cfg.LimitedCapability
	out.DegradeOnError = cfg.DegradeOnErrorEnabled()
	return out
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the record store. The default is an in-memory store.
func WithStore(b store.Backend) Option {
	return func(e *Engine) {
		e.store = b
	}
}

// WithSink sets the audit sink receiving trigger events.
func WithSink(s audit.Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithResolver sets the authority resolver used for override and edit
// checks.
func WithResolver(r *authority.Resolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithEnvironment sets the environment snapshot source.
func WithEnvironment(src conditions.Source) Option {
	return func(e *Engine) {
		e.env = src
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the clock used for snapshots without a time and
// for trigger timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}
