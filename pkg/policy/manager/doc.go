// Package manager connects the policy catalog, the record store and the
// rule lifecycle engine.
//
// Registry holds every known policy definition by ID and serves as the
// engine's Catalog. Manager reconciles the engine's active set with the
// stored records:
//
//	reg := manager.NewRegistry()
//	reg.RegisterAll(builtin.All(env)...)
//
//	eng := engine.New(cfg, reg, engine.WithStore(backend))
//	mgr := manager.New(reg, eng)
//
//	if err := mgr.Sync(ctx); err != nil {
//	    log.Printf("some policies failed to sync: %v", err)
//	}
//	go mgr.Watch(ctx) // file store only
//
// Sync is idempotent. Enabled records are added or refreshed, disabled
// records and records that disappeared are removed, and records for
// policies that are not registered are skipped with a warning.
package manager
