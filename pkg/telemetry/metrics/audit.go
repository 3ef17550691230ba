package metrics

import (
	"mercator-hq/tether/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// AuditMetrics tracks the audit trail.
//
// Metrics:
//   - tether_audit_events_total: Events accepted by policy and kind
//   - tether_audit_dropped_total: Events that could not be queued or written
//   - tether_audit_pruned_total: Events deleted by retention
type AuditMetrics struct {
	eventsTotal  *prometheus.CounterVec
	droppedTotal *prometheus.CounterVec
	prunedTotal  prometheus.Counter
}

// NewAuditMetrics creates and registers audit metrics with the provided registry.
func NewAuditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Total number of audit events accepted",
			},
			[]string{"policy_id", "kind"},
		),

		droppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "audit",
				Name:      "dropped_total",
				Help:      "Total number of audit events dropped",
			},
			[]string{"reason"},
		),

		prunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "audit",
				Name:      "pruned_total",
				Help:      "Total number of audit events deleted by retention",
			},
		),
	}

	registry.MustRegister(
		am.eventsTotal,
		am.droppedTotal,
		am.prunedTotal,
	)

	return am
}

// RecordEvent records an accepted audit event.
func (am *AuditMetrics) RecordEvent(policyID, kind string) {
	am.eventsTotal.WithLabelValues(policyID, kind).Inc()
}

// RecordDropped records a dropped audit event.
func (am *AuditMetrics) RecordDropped(reason string) {
	am.droppedTotal.WithLabelValues(reason).Inc()
}

// RecordPruned records pruned audit events.
func (am *AuditMetrics) RecordPruned(n int64) {
	am.prunedTotal.Add(float64(n))
}
