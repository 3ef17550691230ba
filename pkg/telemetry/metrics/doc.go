// Package metrics exposes Prometheus metrics for the interceptor registry,
// the rule lifecycle engine, and the audit trail.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	registry := intercept.NewRegistry(host, intercept.WithMetrics(collector))
//	http.Handle("/metrics", collector.Handler())
//
// Every Record method is safe on a nil *Collector.
package metrics
