package metrics

import (
	"time"

	"mercator-hq/tether/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the orchestrator for all Prometheus metrics in Tether.
// It owns the registry and exposes one Record method per observable event.
//
// A nil *Collector is valid and records nothing, so components can accept
// an optional collector without guarding every call site.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	interceptMetrics *InterceptMetrics
	engineMetrics    *EngineMetrics
	auditMetrics     *AuditMetrics
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "tether",
//		Subsystem: "engine",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.CallbackDurationBuckets) == 0 {
		cfg.CallbackDurationBuckets = append([]float64(nil), config.DefaultCallbackDurationBuckets...)
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.interceptMetrics = NewInterceptMetrics(cfg, registry)
	c.engineMetrics = NewEngineMetrics(cfg, registry)
	c.auditMetrics = NewAuditMetrics(cfg, registry)

	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordInterceptorCall records one pass through an interceptor.
// shortCircuited is true when the interceptor returned without calling next.
func (c *Collector) RecordInterceptorCall(op string, shortCircuited bool) {
	if !c.enabled() {
		return
	}
	c.interceptMetrics.RecordCall(op, shortCircuited)
}

// RecordInterceptorError records an interceptor failure propagated to the host.
func (c *Collector) RecordInterceptorError(op string) {
	if !c.enabled() {
		return
	}
	c.interceptMetrics.RecordError(op)
}

// RecordPatch records a patch application attempt.
//
// Parameters:
//   - op: host operation name
//   - result: "applied", "noop", or "conflict"
func (c *Collector) RecordPatch(op, result string) {
	if !c.enabled() {
		return
	}
	c.interceptMetrics.RecordPatch(op, result)
}

// RecordTick records a completed engine tick across all active policies.
func (c *Collector) RecordTick(duration time.Duration, active int) {
	if !c.enabled() {
		return
	}
	c.engineMetrics.RecordTick(duration, active)
}

// RecordCallback records the duration of one lifecycle callback.
func (c *Collector) RecordCallback(policyID, callback string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.engineMetrics.RecordCallback(callback, duration)
}

// RecordCallbackError records a failed lifecycle callback.
func (c *Collector) RecordCallbackError(policyID, callback string) {
	if !c.enabled() {
		return
	}
	c.engineMetrics.RecordCallbackError(policyID, callback)
}

// RecordStateChange records an enforcement transition of a policy.
func (c *Collector) RecordStateChange(policyID string, enforced bool) {
	if !c.enabled() {
		return
	}
	c.engineMetrics.RecordStateChange(policyID, enforced)
}

// SetDegraded sets the number of policies currently marked degraded.
func (c *Collector) SetDegraded(n int) {
	if !c.enabled() {
		return
	}
	c.engineMetrics.SetDegraded(n)
}

// RecordDeferred records the outcome of a deferred task.
//
// Parameters:
//   - outcome: "ran", "stale", or "canceled"
func (c *Collector) RecordDeferred(outcome string) {
	if !c.enabled() {
		return
	}
	c.engineMetrics.RecordDeferred(outcome)
}

// RecordAuditEvent records an audit event accepted by the recorder.
func (c *Collector) RecordAuditEvent(policyID, kind string) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordEvent(policyID, kind)
}

// RecordAuditDropped records an audit event that could not be written.
func (c *Collector) RecordAuditDropped(reason string) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordDropped(reason)
}

// RecordAuditPruned records events deleted by retention.
func (c *Collector) RecordAuditPruned(n int64) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordPruned(n)
}
