package metrics

import (
	"mercator-hq/tether/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// InterceptMetrics tracks interceptor chain and patch activity.
//
// Metrics:
//   - tether_intercept_calls_total: Interceptor invocations by operation and outcome
//   - tether_intercept_errors_total: Interceptor errors propagated to the host
//   - tether_intercept_patches_total: Patch applications by operation and result
type InterceptMetrics struct {
	callsTotal   *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	patchesTotal *prometheus.CounterVec
}

// NewInterceptMetrics creates and registers intercept metrics with the provided registry.
func NewInterceptMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *InterceptMetrics {
	im := &InterceptMetrics{
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "intercept",
				Name:      "calls_total",
				Help:      "Total number of interceptor invocations",
			},
			[]string{"op", "outcome"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "intercept",
				Name:      "errors_total",
				Help:      "Total number of interceptor errors propagated to the host",
			},
			[]string{"op"},
		),

		patchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "intercept",
				Name:      "patches_total",
				Help:      "Total number of patch applications",
			},
			[]string{"op", "result"},
		),
	}

	registry.MustRegister(
		im.callsTotal,
		im.errorsTotal,
		im.patchesTotal,
	)

	return im
}

// RecordCall records one interceptor invocation.
func (im *InterceptMetrics) RecordCall(op string, shortCircuited bool) {
	outcome := "next"
	if shortCircuited {
		outcome = "short_circuit"
	}
	im.callsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordError records an interceptor error.
func (im *InterceptMetrics) RecordError(op string) {
	im.errorsTotal.WithLabelValues(op).Inc()
}

// RecordPatch records a patch application.
func (im *InterceptMetrics) RecordPatch(op, result string) {
	im.patchesTotal.WithLabelValues(op, result).Inc()
}
