package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mercator-hq/tether/pkg/conditions"
)

// Policy is a registered behavioral policy. Lifecycle callbacks are
// optional and discovered through the Initializer, Loader, Ticker,
// StateChanger and Unloader interfaces.
type Policy interface {
	Definition() *Definition
}

// Initializer runs once per engine session, the first time the policy is
// added.
type Initializer interface {
	Init(ctx context.Context, rt *Runtime) error
}

// Loader runs every time the policy is added to the active set.
type Loader interface {
	Load(ctx context.Context, rt *Runtime) error
}

// Ticker runs on every engine tick while the policy is in effect. It
// returns true when the policy changed data that should be persisted.
type Ticker interface {
	Tick(ctx context.Context, rt *Runtime) (bool, error)
}

// StateChanger runs once per flip of the enforced flag.
type StateChanger interface {
	StateChange(ctx context.Context, rt *Runtime, enforced bool) error
}

// Unloader runs when the policy leaves the active set.
type Unloader interface {
	Unload(ctx context.Context, rt *Runtime) error
}

// PredicateProvider supplies the custom condition predicates a policy
// implements. They are bound by name to Custom conditions.
type PredicateProvider interface {
	Predicates() map[string]conditions.Predicate
}

// configDecoder is implemented by Typed to decode custom data once per
// change instead of on every read.
type configDecoder interface {
	decodeConfig(custom map[string]any) (any, error)
}

// Typed adapts callbacks written against a typed configuration C to the
// Policy interfaces. C is decoded from the validated custom data through
// its json tags. Nil callbacks are skipped.
type Typed[C any] struct {
	Def *Definition

	OnInit        func(ctx context.Context, s *State[C]) error
	OnLoad        func(ctx context.Context, s *State[C]) error
	OnTick        func(ctx context.Context, s *State[C]) (bool, error)
	OnStateChange func(ctx context.Context, s *State[C], enforced bool) error
	OnUnload      func(ctx context.Context, s *State[C]) error

	// Custom predicates, bound by name.
	Preds map[string]conditions.Predicate
}

// Definition implements Policy.
func (p *Typed[C]) Definition() *Definition {
	return p.Def
}

// Init implements Initializer.
func (p *Typed[C]) Init(ctx context.Context, rt *Runtime) error {
	if p.OnInit == nil {
		return nil
	}
	return p.OnInit(ctx, &State[C]{rt})
}

// Load implements Loader.
func (p *Typed[C]) Load(ctx context.Context, rt *Runtime) error {
	if p.OnLoad == nil {
		return nil
	}
	return p.OnLoad(ctx, &State[C]{rt})
}

// Tick implements Ticker.
func (p *Typed[C]) Tick(ctx context.Context, rt *Runtime) (bool, error) {
	if p.OnTick == nil {
		return false, nil
	}
	return p.OnTick(ctx, &State[C]{rt})
}

// StateChange implements StateChanger.
func (p *Typed[C]) StateChange(ctx context.Context, rt *Runtime, enforced bool) error {
	if p.OnStateChange == nil {
		return nil
	}
	return p.OnStateChange(ctx, &State[C]{rt}, enforced)
}

// Unload implements Unloader.
func (p *Typed[C]) Unload(ctx context.Context, rt *Runtime) error {
	if p.OnUnload == nil {
		return nil
	}
	return p.OnUnload(ctx, &State[C]{rt})
}

// Predicates implements PredicateProvider.
func (p *Typed[C]) Predicates() map[string]conditions.Predicate {
	return p.Preds
}

func (p *Typed[C]) decodeConfig(custom map[string]any) (any, error) {
	var cfg C
	data, err := json.Marshal(custom)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// State is the typed handle a Typed policy holds to its own runtime state.
type State[C any] struct {
	*Runtime
}

// Config returns the decoded custom data.
func (s *State[C]) Config() C {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, _ := s.config.(C)
	return cfg
}

// After schedules fn to run after d unless the policy is removed or the
// engine closes first. fn should re-check IsEnforced before acting.
func (s *State[C]) After(d time.Duration, fn func(ctx context.Context, s *State[C])) {
	s.Runtime.After(d, func(ctx context.Context, rt *Runtime) {
		fn(ctx, &State[C]{rt})
	})
}
