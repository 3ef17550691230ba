package authority

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"mercator-hq/tether/pkg/config"
)

// Setting is the permission configuration of one capability.
type Setting struct {
	// Min is the least authoritative level that still has access.
	Min Level

	// Self grants the local actor access independently of Min.
	Self bool

	// Floor is the least authoritative level Min may ever be set to.
	Floor Level
}

// DataSource supplies the assigned access level of counterpart actors.
// It is treated as read-only ground truth.
type DataSource interface {
	// Role returns actor's assigned level. ok is false when the actor is not
	// a recognized counterpart.
	Role(ctx context.Context, actor string) (level Level, ok bool, err error)
}

// Resolver computes effective access levels for actors against capabilities.
// It holds no lock while calling the data source and never calls back into
// the engine or the interceptor registry, so it can be used from inside an
// interceptor.
type Resolver struct {
	local  string
	source DataSource
	logger *slog.Logger

	mu       sync.RWMutex
	settings map[string]Setting

	// editCapability governs who may change capability minimums.
	editCapability string
}

// failClosed is the setting used for capabilities that were never configured.
var failClosed = Setting{Min: Self, Self: false, Floor: Public}

// NewResolver creates a resolver for the given local actor.
func NewResolver(local string, source DataSource) *Resolver {
	return &Resolver{
		local:    local,
		source:   source,
		settings: make(map[string]Setting),
		logger:   slog.Default().With("component", "authority.resolver"),
	}
}

// FromConfig builds a resolver and its static data source from configuration.
// The configuration is assumed to have passed config.Validate.
func FromConfig(local string, cfg config.AuthorityConfig) (*Resolver, *StaticSource, error) {
	source := NewStaticSource()
	for actor, name := range cfg.Roles {
		level, err := ParseLevel(name)
		if err != nil {
			return nil, nil, fmt.Errorf("role for %s: %w", actor, err)
		}
		source.Set(actor, level)
	}

	r := NewResolver(local, source)
	for name, capCfg := range cfg.Capabilities {
		min, err := ParseLevel(capCfg.Min)
		if err != nil {
			return nil, nil, fmt.Errorf("capability %s min: %w", name, err)
		}
		floor := Public
		if capCfg.Floor != "" {
			if floor, err = ParseLevel(capCfg.Floor); err != nil {
				return nil, nil, fmt.Errorf("capability %s floor: %w", name, err)
			}
		}
		r.SetSetting(name, Setting{Min: min, Self: capCfg.Self, Floor: floor})
	}

	return r, source, nil
}

// LocalActor returns the identifier of the local actor.
func (r *Resolver) LocalActor() string {
	return r.local
}

// SetSetting installs the setting for capability.
func (r *Resolver) SetSetting(capability string, s Setting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[capability] = s
}

// Setting returns the setting for capability and whether it was configured.
// Unconfigured capabilities report a fail-closed setting.
func (r *Resolver) Setting(capability string) (Setting, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[capability]
	if !ok {
		return failClosed, false
	}
	return s, true
}

// Capabilities returns the configured capability names, sorted.
func (r *Resolver) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.settings))
	for name := range r.settings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetEditCapability names the capability that governs changes to every
// capability's minimum, including its own.
func (r *Resolver) SetEditCapability(capability string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.editCapability = capability
}

// EffectiveAccessLevel returns actor's access level with respect to
// capability. The local actor gets Self when the capability grants self
// access. Anyone whose role cannot be determined resolves to Public.
func (r *Resolver) EffectiveAccessLevel(ctx context.Context, actor, capability string) Level {
	setting, _ := r.Setting(capability)

	if actor == r.local && setting.Self {
		return Self
	}

	return r.role(ctx, actor)
}

// role looks up actor's assigned level, failing closed.
func (r *Resolver) role(ctx context.Context, actor string) Level {
	if r.source == nil || actor == "" {
		return LeastPermissive
	}

	level, ok, err := r.source.Role(ctx, actor)
	if err != nil {
		r.logger.Warn("authority lookup failed, treating actor as least privileged",
			"actor", actor,
			"error", err,
		)
		return LeastPermissive
	}
	if !ok || !level.Valid() {
		return LeastPermissive
	}
	// Self is reserved for the local actor; a counterpart assigned it gets
	// the most authoritative counterpart level instead.
	if level == Self && actor != r.local {
		return ClubOwner
	}
	return level
}

// HasAccess reports whether actor's effective level meets capability's minimum.
func (r *Resolver) HasAccess(ctx context.Context, actor, capability string) bool {
	setting, _ := r.Setting(capability)
	return r.EffectiveAccessLevel(ctx, actor, capability).AtLeast(setting.Min)
}

// CanSetMinimum checks whether actor may change capability's minimum to newMin.
//
// The change must name a valid level no less authoritative than the
// capability's floor. The actor must hold the edit capability (when one is
// configured) and must keep access to capability after the change, so that
// nobody can lock themselves out by raising a minimum above their own level.
func (r *Resolver) CanSetMinimum(ctx context.Context, actor, capability string, newMin Level) error {
	setting, ok := r.Setting(capability)
	if !ok {
		return NewPermissionError(actor, capability, ErrUnknownCapability)
	}
	if !newMin.Valid() {
		return NewPermissionError(actor, capability, fmt.Errorf("%w: %d", ErrUnknownLevel, int(newMin)))
	}
	if newMin > setting.Floor {
		return NewPermissionError(actor, capability,
			fmt.Errorf("%w: %s is below floor %s", ErrBelowFloor, newMin, setting.Floor))
	}

	r.mu.RLock()
	edit := r.editCapability
	r.mu.RUnlock()

	if edit != "" && !r.HasAccess(ctx, actor, edit) {
		return NewPermissionError(actor, capability, ErrAccessDenied)
	}

	level := r.EffectiveAccessLevel(ctx, actor, capability)
	if !level.AtLeast(newMin) {
		return NewPermissionError(actor, capability,
			fmt.Errorf("%w: %s cannot require %s", ErrAccessDenied, level, newMin))
	}
	return nil
}

// SetMinimum changes capability's minimum after CanSetMinimum approves it.
func (r *Resolver) SetMinimum(ctx context.Context, actor, capability string, newMin Level) error {
	if err := r.CanSetMinimum(ctx, actor, capability, newMin); err != nil {
		return err
	}

	r.mu.Lock()
	s := r.settings[capability]
	s.Min = newMin
	r.settings[capability] = s
	r.mu.Unlock()

	r.logger.Info("capability minimum changed",
		"actor", actor,
		"capability", capability,
		"min", newMin.String(),
	)
	return nil
}

// StaticSource is an in-memory DataSource.
type StaticSource struct {
	mu    sync.RWMutex
	roles map[string]Level
}

// NewStaticSource creates an empty static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{roles: make(map[string]Level)}
}

// Set assigns actor a level.
func (s *StaticSource) Set(actor string, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[actor] = level
}

// Delete removes actor's assignment.
func (s *StaticSource) Delete(actor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, actor)
}

// Role implements DataSource.
func (s *StaticSource) Role(ctx context.Context, actor string) (Level, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	level, ok := s.roles[actor]
	return level, ok, nil
}
