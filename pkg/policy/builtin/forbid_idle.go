package builtin

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"mercator-hq/tether/pkg/conditions"
	"mercator-hq/tether/pkg/policy/engine"
)

// SettingAway is the host setting ForbidIdle raises on idle actors.
const SettingAway = "away"

type forbidIdleConfig struct {
	Minutes int `json:"minutes"`
}

// ForbidIdle reports, and when enforced marks away, a local actor that has
// been idle for longer than the configured number of minutes. It reports
// once per idle period.
func ForbidIdle(env Env) engine.Policy {
	def := &engine.Definition{
		ID:               "forbid_idle",
		Name:             "Forbid idling",
		Category:         engine.CategoryOther,
		Loggable:         true,
		Enforceable:      true,
		DefaultLimit:     conditions.LimitLimited,
		DefaultEnforced:  true,
		DefaultLogged:    true,
		ShortDescription: "Reports idling for too long",
		Keywords:         []string{"idle", "afk", "inactive"},
		Triggers: engine.TriggerTexts{
			Log:      "Idle for more than ${MINUTES} minutes.",
			Announce: "Idling is not allowed.",
		},
		Schema: engine.Schema{
			{Name: "minutes", Kind: engine.FieldInt, Default: int64(10)},
		},
		InternalDefault: func() any { return false },
		InternalValidate: func(raw json.RawMessage) bool {
			var v bool
			return json.Unmarshal(raw, &v) == nil
		},
	}

	return &engine.Typed[forbidIdleConfig]{
		Def: def,
		OnTick: func(ctx context.Context, s *engine.State[forbidIdleConfig]) (bool, error) {
			var reported bool
			if err := s.DecodeInternal(&reported); err != nil {
				return false, err
			}

			limit := time.Duration(s.Config().Minutes) * time.Minute
			idle := env.Host.Now().Sub(env.Host.LastActivity()) > limit

			switch {
			case idle && !reported:
				if s.IsEnforced() {
					env.Host.SetSetting(SettingAway, true)
				}
				if err := s.Trigger(ctx, "", map[string]string{"MINUTES": strconv.Itoa(s.Config().Minutes)}); err != nil {
					return false, err
				}
				return true, s.SetInternal(true)
			case !idle && reported:
				return true, s.SetInternal(false)
			}
			return false, nil
		},
	}
}
