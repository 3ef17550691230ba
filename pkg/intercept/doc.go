// Package intercept implements the interceptor registry: ordered chains of
// interceptors in front of named host operations.
//
// # Chains
//
// Each host operation has at most one chain. Interceptors run in ascending
// priority order, ties broken by registration order, and each receives a
// Next continuation bound to everything after it:
//
//	registry.Install("Unlock", 0, func(ctx context.Context, call *intercept.Call, next intercept.Next) (any, error) {
//		if state.IsEnforced() {
//			return false, nil // short-circuit: the original never runs
//		}
//		return next(ctx, call.Args...)
//	}, intercept.WithModule("block_unlock"))
//
// The tail of every chain is whatever the Host currently resolves the
// operation to, so a host that replaces a function underneath the registry
// is picked up on the next call without re-installing anything.
//
// # Re-entrancy
//
// Interceptors installed WithReentrancyGuard only observe the outermost call
// of their operation. Nested calls made with the context handed to the
// interceptor pass through to next untouched.
//
// # Errors
//
// An error returned by an interceptor reaches the host caller wrapped in an
// *InterceptorError. Nothing is swallowed and no chain-level recovery exists.
package intercept
