package manager

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mercator-hq/tether/pkg/policy/engine"
)

// Registry is a thread-safe catalog of policy definitions keyed by ID.
// It implements engine.Catalog.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]engine.Policy
	version  string
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]engine.Policy),
	}
}

// Register adds a policy. Definitions are immutable once registered, so
// registering an ID twice fails.
func (r *Registry) Register(p engine.Policy) error {
	if p == nil || p.Definition() == nil {
		return &RegistryError{
			Operation: "register",
			Message:   "policy definition cannot be nil",
			Cause:     ErrInvalidDefinition,
		}
	}

	def := p.Definition()
	if err := def.Validate(); err != nil {
		return &RegistryError{
			PolicyID:  def.ID,
			Operation: "register",
			Message:   "invalid definition",
			Cause:     fmt.Errorf("%w: %w", ErrInvalidDefinition, err),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[def.ID]; ok {
		return &RegistryError{
			PolicyID:  def.ID,
			Operation: "register",
			Message:   "policy already registered",
			Cause:     ErrDuplicatePolicy,
		}
	}

	r.policies[def.ID] = p
	r.updateVersion()
	return nil
}

// RegisterAll registers every policy, stopping at the first failure.
func (r *Registry) RegisterAll(policies ...engine.Policy) error {
	for _, p := range policies {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes a policy by ID.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[id]; !ok {
		return &RegistryError{
			PolicyID:  id,
			Operation: "unregister",
			Message:   "policy not found",
			Cause:     ErrUnknownPolicy,
		}
	}

	delete(r.policies, id)
	r.updateVersion()
	return nil
}

// Get retrieves a policy by ID.
func (r *Registry) Get(id string) (engine.Policy, error) {
	p, ok := r.Lookup(id)
	if !ok {
		return nil, &RegistryError{
			PolicyID:  id,
			Operation: "get",
			Message:   "policy not found",
			Cause:     ErrUnknownPolicy,
		}
	}
	return p, nil
}

// Lookup implements engine.Catalog.
func (r *Registry) Lookup(id string) (engine.Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[id]
	return p, ok
}

// List returns every definition sorted by ID.
func (r *Registry) List() []*engine.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	defs := make([]*engine.Definition, 0, len(ids))
	for _, id := range ids {
		defs = append(defs, r.policies[id].Definition())
	}
	return defs
}

// Search returns the definitions whose ID, name or keywords contain query,
// case-insensitively, sorted by ID.
func (r *Registry) Search(query string) []*engine.Definition {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []*engine.Definition
	for _, def := range r.List() {
		if query == "" || matches(def, query) {
			out = append(out, def)
		}
	}
	return out
}

func matches(def *engine.Definition, query string) bool {
	if strings.Contains(strings.ToLower(def.ID), query) ||
		strings.Contains(strings.ToLower(def.Name), query) {
		return true
	}
	for _, kw := range def.Keywords {
		if strings.Contains(strings.ToLower(kw), query) {
			return true
		}
	}
	return false
}

// Count returns the number of registered policies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.policies)
}

// Version returns a hash of the registered IDs. It changes whenever the
// catalog does.
func (r *Registry) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// updateVersion recomputes the catalog hash. Caller must hold the lock.
func (r *Registry) updateVersion() {
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	r.version = fmt.Sprintf("%x", h.Sum(nil))[:16]
}
