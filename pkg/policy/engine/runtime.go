package engine

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
	"time"

	"mercator-hq/tether/pkg/audit"
	"mercator-hq/tether/pkg/conditions"
	"mercator-hq/tether/pkg/store"
)

// Runtime is the mutable state of one active policy. Callbacks receive it
// as their handle into the engine. Flag reads are safe from any goroutine,
// including interceptors running on the host's call stack.
type Runtime struct {
	def    *Definition
	policy Policy
	engine *Engine

	mu         sync.RWMutex
	record     *store.Record
	config     any
	conditions *conditions.Set
	phase      Phase

	conditionsHold bool
	inEffect       bool
	enforced       bool
	logged         bool

	degraded    bool
	lastErr     error
	lastTrigger time.Time

	// version changes whenever the policy leaves the active set, which
	// invalidates its deferred tasks.
	version uint64
}

// ID returns the policy ID.
func (rt *Runtime) ID() string {
	return rt.def.ID
}

// Definition returns the policy definition.
func (rt *Runtime) Definition() *Definition {
	return rt.def
}

// Phase returns the lifecycle phase.
func (rt *Runtime) Phase() Phase {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.phase
}

// ConditionsHold reports the result of the last condition evaluation.
func (rt *Runtime) ConditionsHold() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.conditionsHold
}

// InEffect reports whether the policy is active, its conditions hold and
// its limit does not block it.
func (rt *Runtime) InEffect() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.inEffect
}

// IsEnforced reports whether the policy actively changes behavior.
// It implies InEffect.
func (rt *Runtime) IsEnforced() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.enforced
}

// IsLogged reports whether the policy records what it observes.
func (rt *Runtime) IsLogged() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.logged
}

// IsEnforcedFor reports whether the policy is enforced against a
// counterpart actor, which is not the case when the actor holds the
// override capability.
func (rt *Runtime) IsEnforcedFor(ctx context.Context, actor string) bool {
	if !rt.IsEnforced() {
		return false
	}
	return !rt.engine.hasOverride(ctx, actor)
}

// Degraded reports whether a callback of this policy has failed.
func (rt *Runtime) Degraded() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.degraded
}

// LastError returns the most recent callback failure.
func (rt *Runtime) LastError() error {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.lastErr
}

// LastTrigger returns when Trigger or TriggerAttempt last recorded an event.
func (rt *Runtime) LastTrigger() time.Time {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.lastTrigger
}

// Record returns a copy of the policy's current record.
func (rt *Runtime) Record() *store.Record {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.record.Clone()
}

// Custom returns a copy of the validated custom data.
func (rt *Runtime) Custom() map[string]any {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return maps.Clone(rt.record.CustomData)
}

// Internal returns the raw internal data.
func (rt *Runtime) Internal() json.RawMessage {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return append(json.RawMessage(nil), rt.record.InternalData...)
}

// DecodeInternal unmarshals the internal data into v. Empty internal data
// leaves v untouched.
func (rt *Runtime) DecodeInternal(v any) error {
	raw := rt.Internal()
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// SetInternal replaces the internal data. It is persisted when the
// current callback reports a change, or when the policy is removed.
func (rt *Runtime) SetInternal(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.record.InternalData = data
	rt.mu.Unlock()
	return nil
}

// Trigger records that the policy's guarded behavior occurred. An empty
// targetID means the event concerns no particular actor.
func (rt *Runtime) Trigger(ctx context.Context, targetID string, vars map[string]string) error {
	return rt.emit(ctx, audit.KindTrigger, rt.def.Triggers.Log, targetID, vars)
}

// TriggerAttempt records that the guarded behavior was attempted and
// blocked.
func (rt *Runtime) TriggerAttempt(ctx context.Context, targetID string, vars map[string]string) error {
	return rt.emit(ctx, audit.KindAttempt, rt.def.Triggers.AttemptLog, targetID, vars)
}

// emit sends exactly one event to the engine's sink when the policy's
// logging toggle is on. Deduplication is left to the policy.
func (rt *Runtime) emit(ctx context.Context, kind audit.Kind, template, targetID string, vars map[string]string) error {
	rt.mu.Lock()
	loggable := rt.def.Loggable && rt.record.Logged
	now := rt.engine.now()
	if loggable {
		rt.lastTrigger = now
	}
	rt.mu.Unlock()

	sink := rt.engine.sink
	if !loggable || sink == nil {
		return nil
	}

	ev := &audit.Event{
		PolicyID: rt.def.ID,
		Kind:     kind,
		Vars:     maps.Clone(vars),
		Template: template,
		Time:     now,
	}
	if targetID != "" {
		ev.TargetID = &targetID
	}
	return sink.Record(ctx, ev)
}

// After schedules fn to run after d. The task is dropped if the policy
// leaves the active set or the engine closes before it fires. fn runs
// under the engine's cycle lock and should re-check IsEnforced.
func (rt *Runtime) After(d time.Duration, fn func(ctx context.Context, rt *Runtime)) {
	rt.engine.schedule(rt, d, fn)
}

// markFailed records a callback failure.
func (rt *Runtime) markFailed(err error, degrade bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.lastErr = err
	if degrade {
		rt.degraded = true
	}
}

// setPhase moves the runtime through the state machine.
func (rt *Runtime) setPhase(to Phase) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !CanTransition(rt.phase, to) {
		return &TransitionError{PolicyID: rt.def.ID, From: rt.phase, To: to}
	}
	rt.phase = to
	return nil
}

// applyRecord installs a validated record and its decoded config.
func (rt *Runtime) applyRecord(rec *store.Record, cfg any, set *conditions.Set) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.record = rec
	rt.config = cfg
	rt.conditions = set
}

func (rt *Runtime) enforceToggle() bool {
	if !rt.def.Enforceable {
		return true
	}
	return rt.record.Enforced
}
