package builtin

import (
	"context"
	"slices"

	"mercator-hq/tether/pkg/intercept"
	"mercator-hq/tether/pkg/policy/engine"
)

type blockUnlockConfig struct {
	// Items limits the policy to these items. Empty means every item.
	Items []string `json:"items"`
}

func (c blockUnlockConfig) covers(item string) bool {
	return len(c.Items) == 0 || slices.Contains(c.Items, item)
}

// BlockUnlock prevents actors from unlocking items while enforced.
func BlockUnlock(env Env) engine.Policy {
	def := &engine.Definition{
		ID:               "block_unlock",
		Name:             "Block unlocking",
		Category:         engine.CategoryBlock,
		Loggable:         true,
		Enforceable:      true,
		DefaultEnforced:  true,
		DefaultLogged:    true,
		ShortDescription: "Prevents unlocking items",
		Keywords:         []string{"unlock", "restraint", "item"},
		Triggers: engine.TriggerTexts{
			Log:        "${TARGET} unlocked ${ITEM}.",
			AttemptLog: "${TARGET} tried to unlock ${ITEM}.",
			Announce:   "Unlocking is blocked.",
		},
		Schema: engine.Schema{
			{Name: "items", Kind: engine.FieldStrings, Default: []string{}},
		},
	}

	return &engine.Typed[blockUnlockConfig]{
		Def: def,
		OnLoad: func(ctx context.Context, s *engine.State[blockUnlockConfig]) error {
			_, err := env.Registry.Install(OpUnlock, 0, func(ctx context.Context, call *intercept.Call, next intercept.Next) (any, error) {
				actor, _ := call.Arg(0).(string)
				item, _ := call.Arg(1).(string)
				vars := map[string]string{"TARGET": actor, "ITEM": item}

				if !s.Config().covers(item) {
					return next(ctx, call.Args...)
				}
				if s.IsEnforcedFor(ctx, actor) {
					if s.IsLogged() {
						_ = s.TriggerAttempt(ctx, actor, vars)
					}
					return false, nil
				}

				res, err := next(ctx, call.Args...)
				if unlocked, _ := res.(bool); err == nil && unlocked && s.IsLogged() {
					_ = s.Trigger(ctx, actor, vars)
				}
				return res, err
			}, intercept.WithModule(def.ID))
			return err
		},
		OnUnload: func(ctx context.Context, s *engine.State[blockUnlockConfig]) error {
			env.Registry.RemoveModule(def.ID)
			return nil
		},
	}
}
