package engine

// Phase is the lifecycle state of a policy.
type Phase int

const (
	// PhaseInactive means the policy is not in the active set.
	PhaseInactive Phase = iota

	// PhaseConditionsFalse means the policy is active but its conditions
	// do not hold (or its limit blocks it).
	PhaseConditionsFalse

	// PhaseConditionsTrue means the policy is active and in effect.
	PhaseConditionsTrue
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseInactive:
		return "inactive"
	case PhaseConditionsFalse:
		return "active_conditions_false"
	case PhaseConditionsTrue:
		return "active_conditions_true"
	}
	return "unknown"
}

// allowedTransitions lists every legal phase change. Staying in the same
// active phase is always allowed.
var allowedTransitions = map[Phase][]Phase{
	PhaseInactive:        {PhaseConditionsFalse},
	PhaseConditionsFalse: {PhaseConditionsTrue, PhaseInactive},
	PhaseConditionsTrue:  {PhaseConditionsFalse, PhaseInactive},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Phase) bool {
	if from == to {
		return from != PhaseInactive
	}
	for _, p := range allowedTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
