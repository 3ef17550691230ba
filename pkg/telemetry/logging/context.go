package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// PolicyIDKey is the context key for the policy being processed.
	PolicyIDKey contextKey = "policy_id"

	// OperationKey is the context key for the intercepted host operation.
	OperationKey contextKey = "operation"

	// ActorKey is the context key for the counterpart actor.
	ActorKey contextKey = "actor"

	// TickKey is the context key for the engine tick sequence number.
	TickKey contextKey = "tick"
)

// WithPolicyID adds a policy ID to the context.
func WithPolicyID(ctx context.Context, policyID string) context.Context {
	return context.WithValue(ctx, PolicyIDKey, policyID)
}

// GetPolicyID retrieves the policy ID from the context.
func GetPolicyID(ctx context.Context) string {
	if id, ok := ctx.Value(PolicyIDKey).(string); ok {
		return id
	}
	return ""
}

// WithOperation adds a host operation name to the context.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, OperationKey, op)
}

// GetOperation retrieves the host operation name from the context.
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(OperationKey).(string); ok {
		return op
	}
	return ""
}

// WithActor adds an actor identifier to the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor retrieves the actor identifier from the context.
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(ActorKey).(string); ok {
		return actor
	}
	return ""
}

// WithTick adds the tick sequence number to the context.
func WithTick(ctx context.Context, tick uint64) context.Context {
	return context.WithValue(ctx, TickKey, tick)
}

// GetTick retrieves the tick sequence number from the context.
func GetTick(ctx context.Context) (uint64, bool) {
	tick, ok := ctx.Value(TickKey).(uint64)
	return tick, ok
}

// FromContext returns logger enriched with every known field carried by ctx.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}

	var args []any
	if id := GetPolicyID(ctx); id != "" {
		args = append(args, string(PolicyIDKey), id)
	}
	if op := GetOperation(ctx); op != "" {
		args = append(args, string(OperationKey), op)
	}
	if actor := GetActor(ctx); actor != "" {
		args = append(args, string(ActorKey), actor)
	}
	if tick, ok := GetTick(ctx); ok {
		args = append(args, string(TickKey), tick)
	}

	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
