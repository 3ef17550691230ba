package conditions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// LocationKind classifies the current location.
type LocationKind string

const (
	// LocationPublic is a location anyone may enter.
	LocationPublic LocationKind = "public"

	// LocationPrivate is a restricted location.
	LocationPrivate LocationKind = "private"
)

// Snapshot is the environment as seen at one instant.
type Snapshot struct {
	// Actors present in the location, sorted, excluding the local actor.
	Actors []string

	// Location is the current location identifier. Empty when the local
	// actor is nowhere in particular.
	Location string

	// Kind of the current location.
	Kind LocationKind

	// Now is the time the snapshot was taken.
	Now time.Time
}

// NewSnapshot builds a snapshot holding a sorted copy of actors.
func NewSnapshot(actors []string, location string, kind LocationKind, now time.Time) Snapshot {
	sorted := make([]string, len(actors))
	copy(sorted, actors)
	sort.Strings(sorted)
	return Snapshot{Actors: sorted, Location: location, Kind: kind, Now: now}
}

// HasActor reports whether actor is present.
func (s Snapshot) HasActor(actor string) bool {
	i := sort.SearchStrings(s.Actors, actor)
	return i < len(s.Actors) && s.Actors[i] == actor
}

// Source captures snapshots of the environment. It is query-only.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Snapshot, error)

// Snapshot implements Source.
func (f SourceFunc) Snapshot(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// StaticSource is a mutable in-memory Source.
type StaticSource struct {
	mu       sync.RWMutex
	actors   map[string]struct{}
	location string
	kind     LocationKind
	clock    func() time.Time
}

// NewStaticSource creates an empty source using the wall clock.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		actors: make(map[string]struct{}),
		kind:   LocationPrivate,
		clock:  time.Now,
	}
}

// SetClock replaces the time function.
func (s *StaticSource) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// Enter marks actors as present.
func (s *StaticSource) Enter(actors ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range actors {
		s.actors[a] = struct{}{}
	}
}

// Leave marks actors as absent.
func (s *StaticSource) Leave(actors ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range actors {
		delete(s.actors, a)
	}
}

// MoveTo changes the current location. Everyone present is left behind.
func (s *StaticSource) MoveTo(location string, kind LocationKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = location
	s.kind = kind
	s.actors = make(map[string]struct{})
}

// Snapshot implements Source.
func (s *StaticSource) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actors := make([]string, 0, len(s.actors))
	for a := range s.actors {
		actors = append(actors, a)
	}
	return NewSnapshot(actors, s.location, s.kind, s.clock()), nil
}
