// Package telemetry groups the observability packages of tether.
//
// # Components
//
//   - logging: slog setup from configuration and context-scoped fields
//     (policy ID, host operation, actor, tick number)
//   - metrics: Prometheus collectors for the engine, the interceptor
//     registry, the patch table and the audit trail
//   - tracing: OpenTelemetry spans around engine ticks and lifecycle
//     callbacks, exported over OTLP gRPC
//   - health: liveness and readiness probes served next to /metrics
//
// # Usage
//
//	cfg := config.GetConfig()
//
//	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging))
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(context.Background())
//
// Every collector method is safe to call on a nil *metrics.Collector, and a
// disabled tracer hands out no-op spans, so components take both as
// optional.
package telemetry
