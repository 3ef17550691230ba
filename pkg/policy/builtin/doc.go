// Package builtin provides sample policies and a simulated host runtime
// to run them against.
//
// The policies cover the ways a policy changes host behavior:
//
//   - block_unlock intercepts the host's Unlock operation and refuses it
//     while enforced.
//   - forbid_idle checks the host on every tick and reports once per
//     idle period.
//   - force_mute holds a host setting at a value and restores it when
//     enforcement ends.
//   - track_time and log_money keep counters in their internal data.
//   - alter_greeting patches the source of the host's Greet operation and
//     intercepts it.
//
// Sim defines the host operations in an intercept.FuncTable:
//
//	table := intercept.NewFuncTable()
//	sim, err := builtin.NewSim(table)
//	hooks := intercept.NewRegistry(table)
//	table.Attach(hooks)
//
//	env := builtin.Env{Host: sim, Registry: hooks, Patches: patch.NewTable(table, nil)}
//	reg.RegisterAll(builtin.All(env)...)
package builtin
