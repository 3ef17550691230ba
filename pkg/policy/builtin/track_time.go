package builtin

import (
	"context"
	"encoding/json"
	"time"

	"mercator-hq/tether/pkg/policy/engine"
)

// trackFlush is how much unrecorded time TrackTime accumulates before it
// asks for its data to be persisted.
const trackFlush = time.Minute

// TrackTime accumulates the time it spends in effect, in milliseconds, in
// its internal data.
func TrackTime(env Env) engine.Policy {
	def := &engine.Definition{
		ID:               "track_time",
		Name:             "Track time",
		Category:         engine.CategoryOther,
		ShortDescription: "Counts time spent under the policy's conditions",
		Keywords:         []string{"time", "counter"},
		InternalDefault:  func() any { return int64(0) },
		InternalValidate: func(raw json.RawMessage) bool {
			var ms int64
			return json.Unmarshal(raw, &ms) == nil && ms >= 0
		},
	}

	// Callbacks run under the engine's cycle lock.
	var since time.Time

	add := func(s *engine.State[struct{}], now time.Time) error {
		var total int64
		if err := s.DecodeInternal(&total); err != nil {
			return err
		}
		total += now.Sub(since).Milliseconds()
		since = now
		return s.SetInternal(total)
	}

	return &engine.Typed[struct{}]{
		Def: def,
		OnStateChange: func(ctx context.Context, s *engine.State[struct{}], enforced bool) error {
			now := env.Host.Now()
			if enforced {
				since = now
				return nil
			}
			if since.IsZero() {
				return nil
			}
			err := add(s, now)
			since = time.Time{}
			return err
		},
		OnTick: func(ctx context.Context, s *engine.State[struct{}]) (bool, error) {
			now := env.Host.Now()
			if since.IsZero() || now.Sub(since) < trackFlush {
				return false, nil
			}
			if err := add(s, now); err != nil {
				return false, err
			}
			return true, nil
		},
	}
}

// TrackedTime decodes the total recorded by TrackTime.
func TrackedTime(raw json.RawMessage) time.Duration {
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
