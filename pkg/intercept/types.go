package intercept

import "context"

// Func is a host operation implementation.
type Func func(ctx context.Context, args ...any) (any, error)

// Next continues a call through the rest of the chain. The arguments passed
// to Next replace the call's arguments for everything beneath the caller.
type Next func(ctx context.Context, args ...any) (any, error)

// Interceptor is a function installed into a host operation's chain.
// Returning without calling next short-circuits the call: the interceptor's
// result becomes the visible result and nothing beneath it runs.
type Interceptor func(ctx context.Context, call *Call, next Next) (any, error)

// Call describes one invocation as seen by an interceptor.
type Call struct {
	// Op is the host operation name.
	Op string

	// Args are the arguments as received by this interceptor.
	Args []any

	// Depth is how many invocations of Op are active in the current call
	// stack, including this one. Depth > 1 means a recursive host call.
	Depth int
}

// Arg returns the i-th argument, or nil if there are fewer arguments.
func (c *Call) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Host is the adapter between the registry and the runtime that owns the
// named operations. Resolve is consulted on every invocation so that a
// function replaced by the host becomes the new tail of its chain.
type Host interface {
	// Resolve returns the current implementation of op and a version that
	// changes whenever the host replaces it.
	Resolve(op string) (fn Func, version uint64, ok bool)
}

// Dispatcher routes host calls through interceptor chains.
// *Registry implements it; FuncTable uses it to divert hooked operations.
type Dispatcher interface {
	Hooked(op string) bool
	Invoke(ctx context.Context, op string, args ...any) (any, error)
}
