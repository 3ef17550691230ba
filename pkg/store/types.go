package store

import (
	"context"
	"encoding/json"
	"maps"
	"time"

	"mercator-hq/tether/pkg/conditions"
)

// Backend defines the interface for policy record persistence.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Load returns the record for id, or ErrNotFound.
	Load(ctx context.Context, id string) (*Record, error)

	// Save creates or replaces a record.
	Save(ctx context.Context, rec *Record) error

	// Delete removes the record for id. Deleting a missing record is a no-op.
	Delete(ctx context.Context, id string) error

	// List returns every record sorted by ID.
	List(ctx context.Context) ([]*Record, error)

	// Close releases resources held by the backend.
	Close() error
}

// Watcher is implemented by backends that can report external changes.
type Watcher interface {
	// Watch blocks until ctx is cancelled, calling onChange after the
	// backend's contents were changed by someone else.
	Watch(ctx context.Context, onChange func() error) error
}

// Record is the persisted configuration and data of one policy.
type Record struct {
	// ID is the policy definition identifier.
	ID string `json:"id" yaml:"id"`

	// Enabled adds the policy to the engine.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Enforced and Logged are the user-facing toggles.
	Enforced bool `json:"enforced" yaml:"enforced"`
	Logged   bool `json:"logged" yaml:"logged"`

	// Limit restricts editing and effect.
	Limit conditions.Limit `json:"limit,omitempty" yaml:"limit,omitempty"`

	// CustomData is user configuration, validated against the policy schema.
	CustomData map[string]any `json:"custom_data,omitempty" yaml:"custom_data,omitempty"`

	// InternalData is policy-owned state, opaque to the store.
	InternalData json.RawMessage `json:"internal_data,omitempty" yaml:"-"`

	// Conditions gate when the policy applies.
	Conditions *conditions.Set `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// UseGlobal replaces Conditions with the category default.
	UseGlobal bool `json:"use_global,omitempty" yaml:"use_global,omitempty"`

	// Timer, when set, ends the policy at that instant.
	Timer *time.Time `json:"timer,omitempty" yaml:"timer,omitempty"`

	// TimerRemove removes instead of disabling when Timer expires.
	TimerRemove bool `json:"timer_remove,omitempty" yaml:"timer_remove,omitempty"`

	// UpdatedAt is set by the backend on Save.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.CustomData = cloneMap(r.CustomData)
	if r.InternalData != nil {
		out.InternalData = append(json.RawMessage(nil), r.InternalData...)
	}
	out.Conditions = r.Conditions.Clone()
	if r.Timer != nil {
		t := *r.Timer
		out.Timer = &t
	}
	return &out
}

// SameSettings reports whether two records agree on everything a user
// configures, ignoring internal data and timestamps.
func (r *Record) SameSettings(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.ID != o.ID || r.Enabled != o.Enabled || r.Enforced != o.Enforced ||
		r.Logged != o.Logged || r.Limit != o.Limit || r.UseGlobal != o.UseGlobal ||
		r.TimerRemove != o.TimerRemove {
		return false
	}
	if (r.Timer == nil) != (o.Timer == nil) || (r.Timer != nil && !r.Timer.Equal(*o.Timer)) {
		return false
	}
	a, _ := json.Marshal(r.CustomData)
	b, _ := json.Marshal(o.CustomData)
	if string(a) != string(b) {
		return false
	}
	a, _ = json.Marshal(r.Conditions)
	b, _ = json.Marshal(o.Conditions)
	return string(a) == string(b)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = cloneMap(vv)
		case []any:
			out[k] = append([]any(nil), vv...)
		}
	}
	return out
}
