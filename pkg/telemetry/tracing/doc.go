// Package tracing provides OpenTelemetry tracing for the rule engine.
//
// Each engine tick is one span; lifecycle callbacks run inside child spans
// tagged with the policy ID and callback name. Spans are exported over OTLP
// gRPC when tracing is enabled and dropped by a noop tracer otherwise.
package tracing
