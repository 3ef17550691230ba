package builtin

import (
	"context"
	"maps"
	"slices"

	"mercator-hq/tether/pkg/intercept"
	"mercator-hq/tether/pkg/policy/engine"
)

type alterGreetingConfig struct {
	Greeting string `json:"greeting"`
}

// AlterGreeting replaces the word the host greets with. The host's
// greeting source is patched once to read the word from its arguments,
// and an interceptor supplies the configured word while enforced.
func AlterGreeting(env Env) engine.Policy {
	def := &engine.Definition{
		ID:               "alter_greeting",
		Name:             "Alter greeting",
		Category:         engine.CategoryAlter,
		Enforceable:      true,
		DefaultEnforced:  true,
		ShortDescription: "Changes how the host greets",
		Keywords:         []string{"greeting", "speech"},
		Schema: engine.Schema{
			{Name: "greeting", Kind: engine.FieldString, Default: "Greetings"},
		},
	}

	return &engine.Typed[alterGreetingConfig]{
		Def: def,
		OnInit: func(ctx context.Context, s *engine.State[alterGreetingConfig]) error {
			return env.Patches.Apply(OpGreet, "Hello", "${greeting}")
		},
		OnLoad: func(ctx context.Context, s *engine.State[alterGreetingConfig]) error {
			_, err := env.Registry.Install(OpGreet, 0, func(ctx context.Context, call *intercept.Call, next intercept.Next) (any, error) {
				vars, ok := call.Arg(0).(map[string]string)
				if !ok || !s.IsEnforced() {
					return next(ctx, call.Args...)
				}
				vars = maps.Clone(vars)
				vars["greeting"] = s.Config().Greeting
				args := slices.Clone(call.Args)
				args[0] = vars
				return next(ctx, args...)
			}, intercept.WithModule(def.ID))
			return err
		},
		OnUnload: func(ctx context.Context, s *engine.State[alterGreetingConfig]) error {
			env.Registry.RemoveModule(def.ID)
			return nil
		},
	}
}
