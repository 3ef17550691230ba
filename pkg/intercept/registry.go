package intercept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"mercator-hq/tether/pkg/telemetry/logging"
	"mercator-hq/tether/pkg/telemetry/metrics"
)

// Registry stores, per host operation, an ordered chain of interceptors and
// invokes them in front of the host's current implementation.
//
// Chains are copy-on-write: Install and Remove publish a new slice, and every
// invocation iterates the slice it loaded when the call started. A nested call
// that installs an interceptor does not disturb iterations already running.
type Registry struct {
	host    Host
	metrics *metrics.Collector
	logger  *slog.Logger

	mu      sync.Mutex
	chains  map[string]*Chain
	nextSeq uint64
	nextID  uint64
}

// Chain is the interceptor chain for one host operation.
type Chain struct {
	op      string
	entries []*entry

	tracked     bool
	calls       atomic.Uint64
	tailVersion atomic.Uint64
}

type entry struct {
	id       uint64
	priority int
	seq      uint64
	module   string
	guard    bool
	fn       Interceptor
}

// Info describes an installed interceptor.
type Info struct {
	Priority int
	Module   string
	Guarded  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records interceptor activity on the given collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) {
		r.metrics = c
	}
}

// WithLogger overrides the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// InstallOption configures a single Install call.
type InstallOption func(*entry)

// WithModule tags the interceptor with a module name. Interceptors are keyed
// by (operation, priority, module): installing again under the same key
// replaces the previous interceptor in place. RemoveModule drops every
// interceptor carrying the tag.
func WithModule(module string) InstallOption {
	return func(e *entry) {
		e.module = module
	}
}

// WithReentrancyGuard skips the interceptor for nested invocations of the
// same operation within one call stack. A guarded interceptor only sees the
// outermost call; recursive host calls pass straight through to next.
func WithReentrancyGuard() InstallOption {
	return func(e *entry) {
		e.guard = true
	}
}

// NewRegistry creates a registry over the given host adapter.
func NewRegistry(host Host, opts ...Option) *Registry {
	r := &Registry{
		host:   host,
		chains: make(map[string]*Chain),
		logger: slog.Default().With("component", "intercept.registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Install registers fn in the chain for op.
//
// Interceptors run in ascending priority order; ties are broken by the order
// of first registration. Re-installing under the same (op, priority, module)
// replaces the earlier interceptor and keeps its position.
func (r *Registry) Install(op string, priority int, fn Interceptor, opts ...InstallOption) (*Handle, error) {
	if op == "" {
		return nil, errors.New("operation name is required")
	}
	if fn == nil {
		return nil, ErrNilInterceptor
	}

	e := &entry{priority: priority, fn: fn}
	for _, opt := range opts {
		opt(e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	e.id = r.nextID

	chain := r.chainLocked(op)
	entries := make([]*entry, 0, len(chain.entries)+1)
	replaced := false
	for _, existing := range chain.entries {
		if existing.priority == e.priority && existing.module == e.module {
			e.seq = existing.seq
			entries = append(entries, e)
			replaced = true
			continue
		}
		entries = append(entries, existing)
	}
	if !replaced {
		r.nextSeq++
		e.seq = r.nextSeq
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].seq < entries[j].seq
	})
	chain.entries = entries

	r.logger.Debug("interceptor installed",
		"op", op,
		"priority", priority,
		"module", e.module,
		"replaced", replaced,
		"chain_length", len(entries),
	)

	return &Handle{registry: r, op: op, id: e.id}, nil
}

// chainLocked returns the chain for op, creating it if needed.
// r.mu must be held.
func (r *Registry) chainLocked(op string) *Chain {
	chain, ok := r.chains[op]
	if !ok {
		chain = &Chain{op: op}
		r.chains[op] = chain
	}
	return chain
}

// remove drops the interceptor with the given id. It reports whether an
// interceptor was removed.
func (r *Registry) remove(op string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain, ok := r.chains[op]
	if !ok {
		return false
	}

	entries := make([]*entry, 0, len(chain.entries))
	for _, e := range chain.entries {
		if e.id != id {
			entries = append(entries, e)
		}
	}
	if len(entries) == len(chain.entries) {
		return false
	}
	chain.entries = entries
	return true
}

// RemoveModule removes every interceptor tagged with module and returns how
// many were removed.
func (r *Registry) RemoveModule(module string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, chain := range r.chains {
		entries := make([]*entry, 0, len(chain.entries))
		for _, e := range chain.entries {
			if e.module == module {
				removed++
				continue
			}
			entries = append(entries, e)
		}
		chain.entries = entries
	}

	if removed > 0 {
		r.logger.Debug("module interceptors removed", "module", module, "count", removed)
	}
	return removed
}

// Track marks op as observed so that host calls are routed through the
// registry and counted even when no interceptor is installed.
func (r *Registry) Track(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chainLocked(op).tracked = true
}

// CallCount returns how many times op has been invoked through the registry.
func (r *Registry) CallCount(op string) uint64 {
	r.mu.Lock()
	chain, ok := r.chains[op]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return chain.calls.Load()
}

// Hooked reports whether calls to op should be routed through the registry.
func (r *Registry) Hooked(op string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain, ok := r.chains[op]
	return ok && (chain.tracked || len(chain.entries) > 0)
}

// Ops returns the names of all operations with a chain, sorted.
func (r *Registry) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make([]string, 0, len(r.chains))
	for op := range r.chains {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Interceptors returns the installed interceptors for op in execution order.
func (r *Registry) Interceptors(op string) []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain, ok := r.chains[op]
	if !ok {
		return nil
	}
	infos := make([]Info, len(chain.entries))
	for i, e := range chain.entries {
		infos[i] = Info{Priority: e.priority, Module: e.module, Guarded: e.guard}
	}
	return infos
}

// Invoke runs op through its interceptor chain, ending in the host's current
// implementation. Errors returned by an interceptor are wrapped in an
// *InterceptorError; errors from the host implementation are returned as is.
// Panics are not recovered.
func (r *Registry) Invoke(ctx context.Context, op string, args ...any) (any, error) {
	r.mu.Lock()
	chain := r.chains[op]
	var entries []*entry
	if chain != nil {
		entries = chain.entries
	}
	r.mu.Unlock()

	tail, version, ok := r.host.Resolve(op)
	if !ok {
		return nil, &UnknownOperationError{Op: op}
	}

	if chain != nil {
		chain.calls.Add(1)
		if prev := chain.tailVersion.Swap(version); prev != 0 && prev != version {
			r.logger.Debug("host replaced operation, re-wrapping as chain tail",
				"op", op,
				"previous_version", prev,
				"version", version,
			)
		}
	}

	ctx, depth := enter(ctx, op)
	inv := &invocation{
		registry: r,
		op:       op,
		entries:  entries,
		tail:     tail,
		depth:    depth,
	}
	return inv.step(0)(ctx, args...)
}

// Handle identifies an installed interceptor.
type Handle struct {
	registry *Registry
	op       string
	id       uint64
}

// Op returns the operation the interceptor is installed on.
func (h *Handle) Op() string {
	return h.op
}

// Remove uninstalls the interceptor. It reports false if the interceptor was
// already removed or replaced.
func (h *Handle) Remove() bool {
	if h == nil {
		return false
	}
	return h.registry.remove(h.op, h.id)
}

// invocation is one walk of a chain snapshot.
type invocation struct {
	registry *Registry
	op       string
	entries  []*entry
	tail     Func
	depth    int
}

func (inv *invocation) step(i int) Next {
	return func(ctx context.Context, args ...any) (any, error) {
		if i >= len(inv.entries) {
			return inv.tail(ctx, args...)
		}

		e := inv.entries[i]
		if e.guard && inv.depth > 1 {
			return inv.step(i+1)(ctx, args...)
		}
		return inv.call(ctx, e, args, inv.step(i+1))
	}
}

func (inv *invocation) call(ctx context.Context, e *entry, args []any, next Next) (any, error) {
	called := false
	var nextErr error
	observed := func(ctx context.Context, args ...any) (any, error) {
		called = true
		res, err := next(ctx, args...)
		nextErr = err
		return res, err
	}

	call := &Call{Op: inv.op, Args: args, Depth: inv.depth}
	result, err := e.fn(logging.WithOperation(ctx, inv.op), call, observed)

	inv.registry.metrics.RecordInterceptorCall(inv.op, !called)

	if err == nil {
		return result, nil
	}

	// Errors coming back up from next belong to whoever raised them.
	if called && nextErr != nil && errors.Is(err, nextErr) {
		return result, err
	}
	var ie *InterceptorError
	if errors.As(err, &ie) {
		return result, err
	}

	inv.registry.metrics.RecordInterceptorError(inv.op)
	return result, NewInterceptorError(inv.op, e.priority, e.module, err)
}

type depthKey struct{}

// enter records one more active invocation of op in ctx.
func enter(ctx context.Context, op string) (context.Context, int) {
	cur, _ := ctx.Value(depthKey{}).(map[string]int)
	next := make(map[string]int, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[op]++
	return context.WithValue(ctx, depthKey{}, next), next[op]
}

// Depth returns how many invocations of op are active in ctx's call stack.
func Depth(ctx context.Context, op string) int {
	cur, _ := ctx.Value(depthKey{}).(map[string]int)
	return cur[op]
}

// String implements fmt.Stringer for debugging.
func (c *Chain) String() string {
	return fmt.Sprintf("Chain(%s, %d interceptors)", c.op, len(c.entries))
}
