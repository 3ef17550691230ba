package builtin

import (
	"context"
	"encoding/json"
	"strconv"

	"mercator-hq/tether/pkg/policy/engine"
)

type logMoneyConfig struct {
	LogEarnings bool `json:"log_earnings"`
}

// LogMoney records changes of the host balance. Spending is always
// recorded, earnings only when configured. The last seen balance is kept
// in internal data; -1 means none has been seen since the policy took
// effect.
func LogMoney(env Env) engine.Policy {
	def := &engine.Definition{
		ID:               "log_money",
		Name:             "Log money",
		Category:         engine.CategoryOther,
		Loggable:         true,
		DefaultLogged:    true,
		ShortDescription: "Logs spending and earning",
		Keywords:         []string{"money", "balance", "spending"},
		Triggers: engine.TriggerTexts{
			Log: "${TYPE} ${AMOUNT}, balance is now ${BALANCE}.",
		},
		Schema: engine.Schema{
			{Name: "log_earnings", Kind: engine.FieldBool, Default: false},
		},
		InternalDefault: func() any { return -1 },
		InternalValidate: func(raw json.RawMessage) bool {
			var v int
			return json.Unmarshal(raw, &v) == nil && v >= -1
		},
	}

	return &engine.Typed[logMoneyConfig]{
		Def: def,
		OnStateChange: func(ctx context.Context, s *engine.State[logMoneyConfig], enforced bool) error {
			if enforced {
				return nil
			}
			return s.SetInternal(-1)
		},
		OnTick: func(ctx context.Context, s *engine.State[logMoneyConfig]) (bool, error) {
			last := -1
			if err := s.DecodeInternal(&last); err != nil {
				return false, err
			}

			money := env.Host.Money()
			if last < 0 {
				return true, s.SetInternal(money)
			}
			if money == last {
				return false, nil
			}

			vars := map[string]string{"BALANCE": strconv.Itoa(money)}
			switch {
			case money < last:
				vars["TYPE"] = "spent"
				vars["AMOUNT"] = strconv.Itoa(last - money)
			case s.Config().LogEarnings:
				vars["TYPE"] = "earned"
				vars["AMOUNT"] = strconv.Itoa(money - last)
			}
			if vars["TYPE"] != "" {
				if err := s.Trigger(ctx, "", vars); err != nil {
					return false, err
				}
			}
			return true, s.SetInternal(money)
		},
	}
}
