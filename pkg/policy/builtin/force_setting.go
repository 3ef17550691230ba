package builtin

import (
	"context"
	"encoding/json"
	"strconv"

	"mercator-hq/tether/pkg/policy/engine"
)

type forceSettingConfig struct {
	Value   bool `json:"value"`
	Restore bool `json:"restore"`
}

// forceSettingData is the internal data of a ForceSetting policy.
type forceSettingData struct {
	// Saved is the host value before the policy took effect.
	Saved *bool `json:"saved,omitempty"`
}

// ForceSetting keeps a host setting at the configured value while
// enforced. With restore set, the value the setting had when enforcement
// began is put back when it ends.
func ForceSetting(env Env, id, setting, name string, value bool) engine.Policy {
	def := &engine.Definition{
		ID:               id,
		Name:             "Force " + name,
		Category:         engine.CategorySetting,
		Priority:         10,
		Loggable:         true,
		Enforceable:      true,
		DefaultEnforced:  true,
		ShortDescription: "Forces the " + setting + " setting",
		Keywords:         []string{"setting", setting},
		Triggers: engine.TriggerTexts{
			Log:      "Setting " + setting + " forced to ${VALUE}.",
			Announce: name + " is forced.",
		},
		Schema: engine.Schema{
			{Name: "value", Kind: engine.FieldBool, Default: value},
			{Name: "restore", Kind: engine.FieldBool, Default: true},
		},
		InternalDefault: func() any { return forceSettingData{} },
		InternalValidate: func(raw json.RawMessage) bool {
			var d forceSettingData
			return json.Unmarshal(raw, &d) == nil
		},
	}

	return &engine.Typed[forceSettingConfig]{
		Def: def,
		OnStateChange: func(ctx context.Context, s *engine.State[forceSettingConfig], enforced bool) error {
			var data forceSettingData
			if err := s.DecodeInternal(&data); err != nil {
				return err
			}

			if enforced {
				if data.Saved == nil {
					cur := env.Host.Setting(setting)
					data.Saved = &cur
				}
				return s.SetInternal(data)
			}

			if data.Saved != nil && s.Config().Restore {
				env.Host.SetSetting(setting, *data.Saved)
			}
			return s.SetInternal(forceSettingData{})
		},
		OnTick: func(ctx context.Context, s *engine.State[forceSettingConfig]) (bool, error) {
			if !s.IsEnforced() {
				return false, nil
			}
			want := s.Config().Value
			if env.Host.Setting(setting) == want {
				return false, nil
			}
			env.Host.SetSetting(setting, want)
			if s.IsLogged() {
				if err := s.Trigger(ctx, "", map[string]string{"VALUE": strconv.FormatBool(want)}); err != nil {
					return true, err
				}
			}
			return true, nil
		},
	}
}
