package tracing

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/tether/pkg/config"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew(t *testing.T) {
	if _, err := New(nil, "test"); err == nil {
		t.Error("New(nil) error = nil, want error")
	}

	tracer, err := New(&config.TracingConfig{Enabled: false, ServiceName: "tether"}, "test")
	if err != nil {
		t.Fatalf("New(disabled) error = %v", err)
	}
	if tracer.Enabled() {
		t.Error("Enabled() = true for disabled config")
	}

	_, span := tracer.Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("disabled tracer produced a valid span context")
	}
	span.End()

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer

	ctx, span := tracer.Start(context.Background(), "nil")
	span.End()

	if tracer.Enabled() {
		t.Error("nil tracer reports enabled")
	}
	if got := TraceID(ctx); got != "" {
		t.Errorf("TraceID() = %q, want empty", got)
	}
}

func TestNewWithProvider_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewWithProvider(provider)

	ctx, span := tracer.Start(context.Background(), "engine.tick")
	if TraceID(ctx) == "" {
		t.Error("TraceID() empty inside a recorded span")
	}
	SetStatus(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if ended[0].Name() != "engine.tick" {
		t.Errorf("span name = %q, want %q", ended[0].Name(), "engine.tick")
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", ended[0].Status().Code)
	}
}
