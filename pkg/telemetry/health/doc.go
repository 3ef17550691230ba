// Package health provides liveness and readiness probes for the engine
// process.
//
// Components register named checks; readiness runs them concurrently with
// a per-check timeout and reports "degraded" when any of them fails:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("store", func(ctx context.Context) error {
//	    _, err := backend.List(ctx)
//	    return err
//	})
//	checker.Mount(mux) // GET /health, GET /ready
package health
