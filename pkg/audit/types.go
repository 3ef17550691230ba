package audit

import (
	"context"
	"maps"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an audit event.
type Kind string

const (
	// KindTrigger records a rule being acted upon.
	KindTrigger Kind = "trigger"

	// KindAttempt records an attempt to break a rule.
	KindAttempt Kind = "attempt"
)

// Event is one entry of the audit trail.
type Event struct {
	// ID is a UUID v4, assigned by Prepare when empty.
	ID string `json:"id"`

	// PolicyID identifies the policy that triggered.
	PolicyID string `json:"policy_id"`

	// Kind is trigger or attempt.
	Kind Kind `json:"kind"`

	// TargetID is the actor or object the event concerns, if any.
	TargetID *string `json:"target_id,omitempty"`

	// Vars are the template variables supplied by the policy.
	Vars map[string]string `json:"vars,omitempty"`

	// Template is the unrendered message text. It is not stored.
	Template string `json:"-"`

	// Message is the rendered text.
	Message string `json:"message,omitempty"`

	// Time is when the event happened, assigned by Prepare when zero.
	Time time.Time `json:"time"`
}

// Clone returns a copy of the event that shares no mutable state.
func (e *Event) Clone() *Event {
	out := *e
	out.Vars = maps.Clone(e.Vars)
	if e.TargetID != nil {
		t := *e.TargetID
		out.TargetID = &t
	}
	return &out
}

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, ev *Event) error
}

// Query selects stored events.
type Query struct {
	PolicyID string     // Filter by policy ID
	Kind     Kind       // Filter by kind
	Since    *time.Time // Inclusive lower bound
	Until    *time.Time // Inclusive upper bound
	Limit    int        // Max events to return, 0 for all
	Offset   int        // Skip N events
	Desc     bool       // Newest first
}

// Storage persists audit events.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists an event.
	Store(ctx context.Context, ev *Event) error

	// Query returns events matching q, ordered by time.
	Query(ctx context.Context, q *Query) ([]*Event, error)

	// Count returns the number of events matching q, ignoring pagination.
	Count(ctx context.Context, q *Query) (int64, error)

	// Delete removes events matching q and returns how many were removed.
	Delete(ctx context.Context, q *Query) (int64, error)

	// Close releases resources held by the storage.
	Close() error
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Render substitutes ${name} placeholders in template with vars.
// Unknown placeholders are left as written.
func Render(template string, vars map[string]string) string {
	if template == "" {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := m[2 : len(m)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// Prepare fills in the event's ID, time and message.
func Prepare(ev *Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Message == "" && ev.Template != "" {
		ev.Message = Render(ev.Template, ev.Vars)
	}
}

// Direct returns a synchronous Sink that writes straight to storage.
func Direct(storage Storage) Sink {
	return directSink{storage: storage}
}

type directSink struct {
	storage Storage
}

func (d directSink) Record(ctx context.Context, ev *Event) error {
	Prepare(ev)
	return d.storage.Store(ctx, ev)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev *Event) error

// Record implements Sink.
func (f SinkFunc) Record(ctx context.Context, ev *Event) error {
	return f(ctx, ev)
}
