package metrics

import (
	"strconv"
	"time"

	"mercator-hq/tether/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks the rule lifecycle engine.
//
// Metrics:
//   - tether_engine_ticks_total: Completed ticks
//   - tether_engine_tick_duration_seconds: Duration of a full tick
//   - tether_engine_active_policies: Policies in the active set
//   - tether_engine_degraded_policies: Policies marked degraded
//   - tether_engine_callback_duration_seconds: Lifecycle callback duration
//   - tether_engine_callback_errors_total: Failed lifecycle callbacks
//   - tether_engine_state_changes_total: Enforcement transitions
//   - tether_engine_deferred_total: Deferred task outcomes
type EngineMetrics struct {
	ticksTotal       prometheus.Counter
	tickDuration     prometheus.Histogram
	activePolicies   prometheus.Gauge
	degradedPolicies prometheus.Gauge
	callbackDuration *prometheus.HistogramVec
	callbackErrors   *prometheus.CounterVec
	stateChanges     *prometheus.CounterVec
	deferredTotal    *prometheus.CounterVec
}

// NewEngineMetrics creates and registers engine metrics with the provided registry.
func NewEngineMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EngineMetrics {
	em := &EngineMetrics{
		ticksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ticks_total",
				Help:      "Total number of completed engine ticks",
			},
		),

		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tick_duration_seconds",
				Help:      "Duration of an engine tick in seconds",
				Buckets:   cfg.CallbackDurationBuckets,
			},
		),

		activePolicies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "active_policies",
				Help:      "Number of policies in the active set",
			},
		),

		degradedPolicies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "degraded_policies",
				Help:      "Number of policies marked degraded after a callback failure",
			},
		),

		callbackDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "callback_duration_seconds",
				Help:      "Duration of lifecycle callbacks in seconds",
				Buckets:   cfg.CallbackDurationBuckets,
			},
			[]string{"callback"},
		),

		callbackErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "callback_errors_total",
				Help:      "Total number of failed lifecycle callbacks",
			},
			[]string{"policy_id", "callback"},
		),

		stateChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "state_changes_total",
				Help:      "Total number of enforcement transitions",
			},
			[]string{"policy_id", "enforced"},
		),

		deferredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "deferred_total",
				Help:      "Total number of deferred tasks by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		em.ticksTotal,
		em.tickDuration,
		em.activePolicies,
		em.degradedPolicies,
		em.callbackDuration,
		em.callbackErrors,
		em.stateChanges,
		em.deferredTotal,
	)

	return em
}

// RecordTick records a completed tick.
func (em *EngineMetrics) RecordTick(duration time.Duration, active int) {
	em.ticksTotal.Inc()
	em.tickDuration.Observe(duration.Seconds())
	em.activePolicies.Set(float64(active))
}

// RecordCallback records a lifecycle callback duration.
func (em *EngineMetrics) RecordCallback(callback string, duration time.Duration) {
	em.callbackDuration.WithLabelValues(callback).Observe(duration.Seconds())
}

// RecordCallbackError records a failed lifecycle callback.
func (em *EngineMetrics) RecordCallbackError(policyID, callback string) {
	em.callbackErrors.WithLabelValues(policyID, callback).Inc()
}

// RecordStateChange records an enforcement transition.
func (em *EngineMetrics) RecordStateChange(policyID string, enforced bool) {
	em.stateChanges.WithLabelValues(policyID, strconv.FormatBool(enforced)).Inc()
}

// SetDegraded sets the degraded policy gauge.
func (em *EngineMetrics) SetDegraded(n int) {
	em.degradedPolicies.Set(float64(n))
}

// RecordDeferred records a deferred task outcome.
func (em *EngineMetrics) RecordDeferred(outcome string) {
	em.deferredTotal.WithLabelValues(outcome).Inc()
}
