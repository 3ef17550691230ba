package builtin

import (
	"mercator-hq/tether/pkg/intercept"
	"mercator-hq/tether/pkg/patch"
	"mercator-hq/tether/pkg/policy/engine"
)

// Env is what the built-in policies need from the process hosting them.
type Env struct {
	// Host is read and changed directly on ticks and state changes.
	Host Host

	// Registry receives the interceptors of block and alter policies.
	Registry *intercept.Registry

	// Patches rewrites host operation source for alter policies.
	Patches *patch.Table
}

// All returns every built-in policy bound to env.
func All(env Env) []engine.Policy {
	return []engine.Policy{
		BlockUnlock(env),
		ForbidIdle(env),
		ForceSetting(env, "force_mute", "muted", "Mute", true),
		TrackTime(env),
		LogMoney(env),
		AlterGreeting(env),
	}
}
