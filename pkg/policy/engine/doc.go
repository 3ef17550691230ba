// Package engine implements the rule lifecycle engine.
//
// The engine owns the runtime state of every active policy. Policies are
// registered in a Catalog as Definition values plus optional lifecycle
// callbacks, and are added to or removed from the active set by the
// configuration collaborator (see the manager package).
//
// # Lifecycle
//
// Each active policy moves through a small state machine:
//
//	Inactive -> ActiveConditionsFalse <-> ActiveConditionsTrue -> Inactive
//
// Add runs Init (once per engine session) and Load. Every Tick takes one
// environment snapshot, evaluates each policy's conditions against it and
// derives three flags:
//
//	InEffect   = active && conditions hold && limit != blocked
//	IsEnforced = InEffect && enforced toggle && local actor has no override
//	IsLogged   = InEffect && logged toggle && definition is loggable
//
// StateChange runs exactly once for each flip of IsEnforced. Policies in
// effect then get their Tick callback; returning true persists their
// internal data. Remove runs StateChange(false) for an enforced policy
// before Unload, so that a policy can restore what it changed.
//
// # Failure isolation
//
// A callback that returns an error or panics is reported as a
// *LifecycleCallbackError, logged, counted and marks the policy degraded.
// The engine keeps ticking every other policy, and the degraded one too.
// Invalid stored data never fails an Add: it is replaced by the
// definition's defaults and reported as a *ValidationError.
//
// # Deferred tasks
//
// Runtime.After schedules work on a timer. Each task captures the engine
// epoch and the policy's state version and is dropped at fire time if
// either changed, so a task never outlives the activation that scheduled
// it. Task bodies still re-check IsEnforced before acting.
//
// # Example
//
//	catalog := manager.NewRegistry()
//	catalog.Register(myPolicy)
//
//	eng := engine.New(engine.DefaultConfig(), catalog,
//	    engine.WithStore(backend),
//	    engine.WithSink(recorder),
//	    engine.WithResolver(resolver),
//	)
//	defer eng.Close(ctx)
//
//	if _, err := eng.Add(ctx, "forbid_idle"); err != nil {
//	    return err
//	}
//	eng.Start(ctx)
package engine
