package main

import (
	"fmt"

	"mercator-hq/tether/pkg/intercept"
	"mercator-hq/tether/pkg/patch"
	"mercator-hq/tether/pkg/policy/builtin"
	"mercator-hq/tether/pkg/policy/manager"
	"mercator-hq/tether/pkg/telemetry/metrics"
)

// demoHost is the simulated host runtime and the policy catalog bound to
// it.
type demoHost struct {
	sim     *builtin.Sim
	hooks   *intercept.Registry
	patches *patch.Table
	catalog *manager.Registry
}

// newDemoHost builds the simulated host and registers the built-in
// policies against it. collector may be nil.
func newDemoHost(collector *metrics.Collector) (*demoHost, error) {
	table := intercept.NewFuncTable()
	sim, err := builtin.NewSim(table)
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	hooks := intercept.NewRegistry(table, intercept.WithMetrics(collector))
	table.Attach(hooks)
	hooks.Track(builtin.OpUnlock)

	env := builtin.Env{
		Host:     sim,
		Registry: hooks,
		Patches:  patch.NewTable(table, collector),
	}
	catalog := manager.NewRegistry()
	if err := catalog.RegisterAll(builtin.All(env)...); err != nil {
		return nil, fmt.Errorf("failed to register built-in policies: %w", err)
	}

	return &demoHost{
		sim:     sim,
		hooks:   hooks,
		patches: env.Patches,
		catalog: catalog,
	}, nil
}
