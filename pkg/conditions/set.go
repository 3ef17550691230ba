package conditions

import (
	"errors"
	"fmt"
	"slices"
)

// Predicate is a named custom condition evaluated against a snapshot.
type Predicate func(Snapshot) bool

// Set is a conjunction of requirements. A nil requirement is ignored.
type Set struct {
	ActorPresent *ActorPresent `json:"actor_present,omitempty" yaml:"actor_present,omitempty"`
	LocationIs   *LocationIs   `json:"location_is,omitempty" yaml:"location_is,omitempty"`
	TimeWindow   *TimeWindow   `json:"time_window,omitempty" yaml:"time_window,omitempty"`
	Custom       []Custom      `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// ActorPresent requires counterpart actors to be present.
type ActorPresent struct {
	// IDs lists the actors of interest. When empty, any actor counts.
	IDs []string `json:"ids,omitempty" yaml:"ids,omitempty"`

	// Any requires only one of IDs instead of all of them.
	Any bool `json:"any,omitempty" yaml:"any,omitempty"`

	// Negate inverts the requirement.
	Negate bool `json:"negate,omitempty" yaml:"negate,omitempty"`
}

// LocationIs requires the current location to match.
type LocationIs struct {
	// IDs lists acceptable locations. When empty, any location matches.
	IDs []string `json:"ids,omitempty" yaml:"ids,omitempty"`

	// Kind restricts the location kind. Empty matches either kind.
	Kind LocationKind `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Negate inverts the requirement.
	Negate bool `json:"negate,omitempty" yaml:"negate,omitempty"`
}

// Custom references a predicate by name. Predicates are attached with Bind.
type Custom struct {
	Name      string    `json:"name" yaml:"name"`
	Negate    bool      `json:"negate,omitempty" yaml:"negate,omitempty"`
	Predicate Predicate `json:"-" yaml:"-"`
}

// IsEmpty reports whether the set has no requirements.
func (s *Set) IsEmpty() bool {
	return s == nil || (s.ActorPresent == nil && s.LocationIs == nil && s.TimeWindow == nil && len(s.Custom) == 0)
}

// Evaluate reports whether every requirement of set holds in snap.
// A nil or empty set holds. A custom requirement without a bound predicate
// does not hold.
func Evaluate(snap Snapshot, set *Set) bool {
	if set.IsEmpty() {
		return true
	}
	if set.ActorPresent != nil && !set.ActorPresent.Matches(snap) {
		return false
	}
	if set.LocationIs != nil && !set.LocationIs.Matches(snap) {
		return false
	}
	if set.TimeWindow != nil && !set.TimeWindow.Contains(snap.Now) {
		return false
	}
	for _, c := range set.Custom {
		if !c.Matches(snap) {
			return false
		}
	}
	return true
}

// Matches evaluates the requirement against snap.
func (a *ActorPresent) Matches(snap Snapshot) bool {
	var ok bool
	switch {
	case len(a.IDs) == 0:
		ok = len(snap.Actors) > 0
	case a.Any:
		ok = slices.ContainsFunc(a.IDs, snap.HasActor)
	default:
		ok = true
		for _, id := range a.IDs {
			if !snap.HasActor(id) {
				ok = false
				break
			}
		}
	}
	return ok != a.Negate
}

// Matches evaluates the requirement against snap.
func (l *LocationIs) Matches(snap Snapshot) bool {
	ok := (len(l.IDs) == 0 || slices.Contains(l.IDs, snap.Location)) &&
		(l.Kind == "" || l.Kind == snap.Kind)
	return ok != l.Negate
}

// Matches evaluates the predicate against snap.
func (c Custom) Matches(snap Snapshot) bool {
	if c.Predicate == nil {
		return false
	}
	return c.Predicate(snap) != c.Negate
}

// Bind returns a copy of the set with custom predicates looked up by name.
// Unknown names stay unbound.
func (s *Set) Bind(predicates map[string]Predicate) *Set {
	if s == nil {
		return nil
	}
	out := s.Clone()
	for i := range out.Custom {
		if p, ok := predicates[out.Custom[i].Name]; ok {
			out.Custom[i].Predicate = p
		}
	}
	return out
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	out := &Set{}
	if s.ActorPresent != nil {
		a := *s.ActorPresent
		a.IDs = slices.Clone(a.IDs)
		out.ActorPresent = &a
	}
	if s.LocationIs != nil {
		l := *s.LocationIs
		l.IDs = slices.Clone(l.IDs)
		out.LocationIs = &l
	}
	if s.TimeWindow != nil {
		w := *s.TimeWindow
		w.Days = slices.Clone(w.Days)
		out.TimeWindow = &w
	}
	out.Custom = slices.Clone(s.Custom)
	return out
}

// Validate checks that every requirement is well formed.
func (s *Set) Validate() error {
	if s == nil {
		return nil
	}

	var errs []error
	if s.LocationIs != nil {
		switch s.LocationIs.Kind {
		case "", LocationPublic, LocationPrivate:
		default:
			errs = append(errs, fmt.Errorf("location_is: unknown kind %q", s.LocationIs.Kind))
		}
	}
	if s.TimeWindow != nil {
		if err := s.TimeWindow.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("time_window: %w", err))
		}
	}
	for i, c := range s.Custom {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("custom[%d]: name is required", i))
		}
	}
	return errors.Join(errs...)
}
