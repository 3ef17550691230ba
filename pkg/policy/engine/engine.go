package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/tether/pkg/audit"
	"mercator-hq/tether/pkg/authority"
	"mercator-hq/tether/pkg/conditions"
	"mercator-hq/tether/pkg/store"
	"mercator-hq/tether/pkg/telemetry/logging"
	"mercator-hq/tether/pkg/telemetry/metrics"
	"mercator-hq/tether/pkg/telemetry/tracing"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
)

// Catalog looks up registered policies by ID.
type Catalog interface {
	Lookup(id string) (Policy, bool)
}

// ChangeFunc observes persisted policy changes. It runs under the engine's
// cycle lock and must not call back into the engine.
type ChangeFunc func(id string, rec *store.Record)

// Engine owns the runtime state of every active policy and drives their
// lifecycle.
//
// Add, Remove, Tick, Refresh, Reconcile and deferred tasks serialize on a
// single cycle lock. Get and the Runtime flag accessors never take it, so
// interceptors may consult policy state while a tick is running.
type Engine struct {
	cfg      Config
	catalog  Catalog
	store    store.Backend
	sink     audit.Sink
	resolver *authority.Resolver
	env      conditions.Source
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	logger   *slog.Logger
	clock    func() time.Time

	// mu is the cycle lock.
	mu          sync.Mutex
	initialized map[string]bool
	closed      bool
	ticks       uint64
	observers   []ChangeFunc
	cron        *cron.Cron

	// amu guards active for readers outside the cycle lock.
	amu    sync.RWMutex
	active map[string]*Runtime

	epoch  atomic.Uint64
	tmu    sync.Mutex
	timers map[*time.Timer]struct{}
}

// New creates an engine over the policies in catalog.
func New(cfg Config, catalog Catalog, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		catalog:     catalog,
		initialized: make(map[string]bool),
		active:      make(map[string]*Runtime),
		timers:      make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = store.NewMemoryBackend()
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", "policy.engine")
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.cfg.TickInterval <= 0 {
		e.cfg.TickInterval = DefaultConfig().TickInterval
	}
	return e
}

// OnChange registers an observer of persisted changes.
func (e *Engine) OnChange(fn ChangeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Store returns the record store.
func (e *Engine) Store() store.Backend {
	return e.store
}

// Get returns the runtime of an active policy.
func (e *Engine) Get(id string) (*Runtime, bool) {
	e.amu.RLock()
	defer e.amu.RUnlock()
	rt, ok := e.active[id]
	return rt, ok
}

// Active returns the IDs of active policies in tick order.
func (e *Engine) Active() []string {
	ordered := e.ordered()
	ids := make([]string, len(ordered))
	for i, rt := range ordered {
		ids[i] = rt.ID()
	}
	return ids
}

// Add moves a registered policy into the active set using its stored
// record, or its definition's default record when none is stored.
// Conditions are evaluated on the next Tick or Refresh.
func (e *Engine) Add(ctx context.Context, id string) (*Runtime, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addLocked(ctx, id, nil)
}

func (e *Engine) addLocked(ctx context.Context, id string, rec *store.Record) (*Runtime, error) {
	if e.closed {
		return nil, ErrEngineClosed
	}
	if _, ok := e.Get(id); ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, id)
	}
	policy, ok := e.catalog.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, id)
	}
	def := policy.Definition()

	created := false
	if rec == nil {
		stored, err := e.store.Load(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			rec = def.DefaultRecord()
			created = true
		case err != nil:
			return nil, fmt.Errorf("load record %s: %w", id, err)
		default:
			rec = stored
		}
	}

	rt := &Runtime{
		def:    def,
		policy: policy,
		engine: e,
		phase:  PhaseInactive,
	}
	normalized, cfg, set, changed := e.prepare(ctx, policy, rec)
	rt.applyRecord(normalized, cfg, set)

	if err := rt.setPhase(PhaseConditionsFalse); err != nil {
		return nil, err
	}

	e.amu.Lock()
	e.active[id] = rt
	e.amu.Unlock()

	if initer, ok := policy.(Initializer); ok && !e.initialized[id] {
		_ = e.invoke(ctx, rt, "init", func(ctx context.Context) error {
			return initer.Init(ctx, rt)
		})
	}
	e.initialized[id] = true

	if loader, ok := policy.(Loader); ok {
		_ = e.invoke(ctx, rt, "load", func(ctx context.Context) error {
			return loader.Load(ctx, rt)
		})
	}

	if created || changed {
		if err := e.store.Save(ctx, rt.Record()); err != nil {
			e.logger.Error("failed to persist policy record", "policy_id", id, "error", err)
		} else {
			e.notify(rt)
		}
	}

	e.logger.Info("policy added", "policy_id", id, "created", created)
	return rt, nil
}

// Remove moves a policy out of the active set. An enforced policy gets
// StateChange(false) before Unload, and whatever internal data that
// leaves behind is persisted. Pending deferred tasks of the policy are
// dropped.
func (e *Engine) Remove(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	rt, ok := e.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotActive, id)
	}
	e.removeLocked(ctx, rt)
	return nil
}

func (e *Engine) removeLocked(ctx context.Context, rt *Runtime) {
	id := rt.ID()

	rt.mu.Lock()
	wasEnforced := rt.enforced
	rt.enforced = false
	rt.logged = false
	rt.inEffect = false
	rt.mu.Unlock()

	if wasEnforced {
		e.metrics.RecordStateChange(id, false)
		if sc, ok := rt.policy.(StateChanger); ok {
			_ = e.invoke(ctx, rt, "state_change", func(ctx context.Context) error {
				return sc.StateChange(ctx, rt, false)
			})
		}
	}

	if unloader, ok := rt.policy.(Unloader); ok {
		_ = e.invoke(ctx, rt, "unload", func(ctx context.Context) error {
			return unloader.Unload(ctx, rt)
		})
	}

	if err := rt.setPhase(PhaseInactive); err != nil {
		e.logger.Error("unexpected lifecycle state", "policy_id", id, "error", err)
	}
	rt.mu.Lock()
	rt.version++
	rt.mu.Unlock()

	e.amu.Lock()
	delete(e.active, id)
	e.amu.Unlock()

	e.persistInternal(ctx, rt)
	e.logger.Info("policy removed", "policy_id", id)
}

// Tick evaluates every active policy against one environment snapshot,
// applies the resulting transitions and runs Tick callbacks of policies
// in effect. A failing policy does not stop the others.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	e.ticks++
	ctx = logging.WithTick(ctx, e.ticks)

	ordered := e.ordered()
	ctx, span := e.tracer.Start(ctx, "engine.tick", trace.WithAttributes(
		tracing.AttrTick.Int64(int64(e.ticks)),
		tracing.AttrActive.Int(len(ordered)),
	))
	defer span.End()

	start := time.Now()
	snap, err := e.snapshot(ctx)
	if err != nil {
		tracing.SetStatus(span, err)
		e.logger.Error("environment snapshot failed, skipping tick", "error", err)
		return fmt.Errorf("environment snapshot: %w", err)
	}

	for _, rt := range ordered {
		if ctx.Err() != nil {
			break
		}
		e.step(ctx, rt, snap)
	}

	e.metrics.RecordTick(time.Since(start), len(e.active))
	e.metrics.SetDegraded(e.degradedCount())
	return ctx.Err()
}

// step advances one policy within a tick.
func (e *Engine) step(ctx context.Context, rt *Runtime, snap conditions.Snapshot) {
	rec := rt.Record()
	if conditions.TimerExpired(rec.Timer, snap.Now) {
		e.expire(ctx, rt, rec)
		return
	}

	e.evaluate(ctx, rt, snap)
	if !rt.InEffect() {
		return
	}

	ticker, ok := rt.policy.(Ticker)
	if !ok {
		return
	}
	var changed bool
	err := e.invoke(ctx, rt, "tick", func(ctx context.Context) error {
		var err error
		changed, err = ticker.Tick(ctx, rt)
		return err
	})
	if err == nil && changed {
		e.persistInternal(ctx, rt)
	}
}

// evaluate recomputes the derived flags of rt and fires StateChange when
// the enforced flag flipped.
func (e *Engine) evaluate(ctx context.Context, rt *Runtime, snap conditions.Snapshot) {
	rt.mu.RLock()
	set := rt.conditions
	blocked := rt.record.Limit.Blocked()
	rt.mu.RUnlock()

	hold := conditions.Evaluate(snap, set)
	inEffect := hold && !blocked
	override := e.hasOverride(ctx, e.cfg.LocalActor)

	rt.mu.Lock()
	prev := rt.enforced
	rt.conditionsHold = hold
	rt.inEffect = inEffect
	rt.enforced = inEffect && rt.enforceToggle() && !override
	rt.logged = inEffect && rt.record.Logged && rt.def.Loggable
	enforced := rt.enforced
	rt.mu.Unlock()

	target := PhaseConditionsFalse
	if inEffect {
		target = PhaseConditionsTrue
	}
	if err := rt.setPhase(target); err != nil {
		e.logger.Error("unexpected lifecycle state", "policy_id", rt.ID(), "error", err)
	}

	if enforced == prev {
		return
	}
	e.metrics.RecordStateChange(rt.ID(), enforced)
	logging.FromContext(ctx, e.logger).Debug("policy enforcement changed",
		"policy_id", rt.ID(),
		"enforced", enforced,
	)
	if sc, ok := rt.policy.(StateChanger); ok {
		_ = e.invoke(ctx, rt, "state_change", func(ctx context.Context) error {
			return sc.StateChange(ctx, rt, enforced)
		})
	}
}

// expire ends a policy whose timer ran out: it is removed and then either
// deleted from the store or disabled there.
func (e *Engine) expire(ctx context.Context, rt *Runtime, rec *store.Record) {
	id := rt.ID()
	e.removeLocked(ctx, rt)

	if rec.TimerRemove {
		if err := e.store.Delete(ctx, id); err != nil {
			e.logger.Error("failed to delete expired policy", "policy_id", id, "error", err)
		}
		e.logger.Info("policy timer expired, policy deleted", "policy_id", id)
		return
	}

	stored, err := e.store.Load(ctx, id)
	if err != nil {
		e.logger.Error("failed to load expired policy", "policy_id", id, "error", err)
		return
	}
	stored.Enabled = false
	stored.Timer = nil
	if err := e.store.Save(ctx, stored); err != nil {
		e.logger.Error("failed to disable expired policy", "policy_id", id, "error", err)
		return
	}
	e.logger.Info("policy timer expired, policy disabled", "policy_id", id)
	e.notifyRecord(id, stored)
}

// Refresh reloads an active policy's record from the store and
// re-evaluates it immediately.
func (e *Engine) Refresh(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	rt, ok := e.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotActive, id)
	}
	rec, err := e.store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("load record %s: %w", id, err)
	}
	return e.refreshLocked(ctx, rt, rec)
}

func (e *Engine) refreshLocked(ctx context.Context, rt *Runtime, rec *store.Record) error {
	// The store copy may predate the policy's latest internal data.
	rec = rec.Clone()
	rec.InternalData = rt.Internal()

	normalized, cfg, set, _ := e.prepare(ctx, rt.policy, rec)
	rt.applyRecord(normalized, cfg, set)

	snap, err := e.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("environment snapshot: %w", err)
	}
	e.evaluate(ctx, rt, snap)
	return nil
}

// Reconcile brings one policy in line with rec: enabled records are added
// or refreshed, disabled ones removed.
func (e *Engine) Reconcile(ctx context.Context, rec *store.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	rt, active := e.Get(rec.ID)
	switch {
	case rec.Enabled && !active:
		_, err := e.addLocked(ctx, rec.ID, rec)
		return err
	case rec.Enabled && active:
		if rt.Record().SameSettings(rec) {
			return nil
		}
		return e.refreshLocked(ctx, rt, rec)
	case !rec.Enabled && active:
		e.removeLocked(ctx, rt)
	}
	return nil
}

// CanEdit reports whether actor may change the policy's settings. Policies
// whose limit is "limited" require the limited capability.
func (e *Engine) CanEdit(ctx context.Context, actor, id string) error {
	var limit conditions.Limit
	if rt, ok := e.Get(id); ok {
		limit = rt.Record().Limit
	} else if rec, err := e.store.Load(ctx, id); err == nil {
		limit = rec.Limit
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if limit != conditions.LimitLimited || e.cfg.LimitedCapability == "" {
		return nil
	}
	if e.resolver != nil && e.resolver.HasAccess(ctx, actor, e.cfg.LimitedCapability) {
		return nil
	}
	return fmt.Errorf("%w: %s is limited", ErrEditDenied, id)
}

// Update stores rec on behalf of actor and reconciles the engine with it.
func (e *Engine) Update(ctx context.Context, actor string, rec *store.Record) error {
	if _, ok := e.catalog.Lookup(rec.ID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, rec.ID)
	}
	if err := e.CanEdit(ctx, actor, rec.ID); err != nil {
		return err
	}
	if rt, ok := e.Get(rec.ID); ok && rec.InternalData == nil {
		rec = rec.Clone()
		rec.InternalData = rt.Internal()
	}
	if err := e.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save record %s: %w", rec.ID, err)
	}
	e.logger.Info("policy updated", "policy_id", rec.ID, "actor", actor)
	return e.Reconcile(ctx, rec)
}

// Start ticks the engine every TickInterval until ctx is cancelled or
// Stop is called. A tick still running when the next is due is skipped.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.cron != nil {
		return errors.New("engine scheduler already running")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(cron.Every(e.cfg.TickInterval), cron.FuncJob(func() {
		if err := e.Tick(ctx); err != nil && !errors.Is(err, ErrEngineClosed) && ctx.Err() == nil {
			e.logger.Error("tick failed", "error", err)
		}
	}))
	c.Start()
	e.cron = c

	e.logger.Info("engine scheduler started", "interval", e.cfg.TickInterval)

	go func() {
		<-ctx.Done()
		e.Stop()
	}()
	return nil
}

// Stop stops the tick scheduler and waits for a running tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		e.logger.Info("engine scheduler stopped")
	}
}

// Close stops the scheduler, drops pending deferred tasks and removes
// every active policy.
func (e *Engine) Close(ctx context.Context) error {
	e.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.epoch.Add(1)

	e.tmu.Lock()
	for t := range e.timers {
		t.Stop()
	}
	clear(e.timers)
	e.tmu.Unlock()

	for _, rt := range e.ordered() {
		e.removeLocked(ctx, rt)
	}
	e.closed = true
	e.logger.Info("engine closed")
	return nil
}

// schedule arms a deferred task for rt.
func (e *Engine) schedule(rt *Runtime, d time.Duration, fn func(ctx context.Context, rt *Runtime)) {
	epoch := e.epoch.Load()
	rt.mu.RLock()
	version := rt.version
	rt.mu.RUnlock()

	e.tmu.Lock()
	defer e.tmu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		e.tmu.Lock()
		delete(e.timers, timer)
		e.tmu.Unlock()
		e.runDeferred(rt, epoch, version, fn)
	})
	e.timers[timer] = struct{}{}
}

// runDeferred runs a deferred task unless its policy or the engine moved on.
func (e *Engine) runDeferred(rt *Runtime, epoch, version uint64, fn func(ctx context.Context, rt *Runtime)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rt.mu.RLock()
	current := rt.version
	rt.mu.RUnlock()

	active, _ := e.Get(rt.ID())
	if e.closed || e.epoch.Load() != epoch || current != version || active != rt {
		e.metrics.RecordDeferred("dropped")
		return
	}

	err := e.invoke(context.Background(), rt, "deferred", func(ctx context.Context) error {
		fn(ctx, rt)
		return nil
	})
	if err != nil {
		e.metrics.RecordDeferred("failed")
		return
	}
	e.metrics.RecordDeferred("ran")
}

// invoke runs one policy callback with failure isolation. Errors and
// panics become a *LifecycleCallbackError that is logged, counted and
// returned, and never escape into the caller's loop.
func (e *Engine) invoke(ctx context.Context, rt *Runtime, name string, fn func(ctx context.Context) error) (err error) {
	id := rt.ID()
	ctx = logging.WithPolicyID(ctx, id)
	ctx, span := e.tracer.Start(ctx, "policy."+name, trace.WithAttributes(
		tracing.AttrPolicyID.String(id),
		tracing.AttrCallback.String(name),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = &LifecycleCallbackError{
				PolicyID: id,
				Callback: name,
				Panic:    p,
				Cause:    fmt.Errorf("panic: %v", p),
			}
		}
		e.metrics.RecordCallback(id, name, time.Since(start))
		if err == nil {
			return
		}
		tracing.SetStatus(span, err)
		e.metrics.RecordCallbackError(id, name)
		rt.markFailed(err, e.cfg.DegradeOnError)
		logging.FromContext(ctx, e.logger).Error("policy callback failed",
			"callback", name,
			"error", err,
		)
	}()

	if cbErr := fn(ctx); cbErr != nil {
		return &LifecycleCallbackError{PolicyID: id, Callback: name, Cause: cbErr}
	}
	return nil
}

// prepare validates rec against the policy. Invalid data is replaced by
// defaults and reported through the log; changed is true when the
// result differs from what was stored.
func (e *Engine) prepare(ctx context.Context, policy Policy, rec *store.Record) (*store.Record, any, *conditions.Set, bool) {
	def := policy.Definition()
	out := rec.Clone()
	out.ID = def.ID
	changed := false

	if out.Limit == "" {
		out.Limit = conditions.LimitNormal
	}
	if !out.Limit.Valid() {
		e.logValidation(NewValidationError(def.ID, "limit",
			[]FieldError{{Field: "limit", Message: fmt.Sprintf("unknown limit %q", out.Limit)}}))
		out.Limit = def.DefaultRecord().Limit
		changed = true
	}

	custom, err := def.Schema.Decode(def.ID, out.CustomData)
	if err != nil {
		e.logValidation(err)
		changed = true
	} else if len(custom) != len(out.CustomData) {
		changed = true
	}
	out.CustomData = custom

	if reason := e.checkInternal(def, out.InternalData); reason != "" || len(out.InternalData) == 0 {
		if reason != "" {
			e.logValidation(NewValidationError(def.ID, "internal_data",
				[]FieldError{{Field: "internal_data", Message: reason}}))
		}
		internal, err := def.defaultInternal()
		if err != nil {
			e.logger.Error("failed to encode internal default", "policy_id", def.ID, "error", err)
		}
		if len(internal) > 0 || len(out.InternalData) > 0 {
			changed = true
		}
		out.InternalData = internal
	}

	if err := out.Conditions.Validate(); err != nil {
		e.logValidation(&ValidationError{PolicyID: def.ID, Section: "conditions", Cause: err})
	}

	var cfg any
	if dec, ok := policy.(configDecoder); ok {
		if cfg, err = dec.decodeConfig(out.CustomData); err != nil {
			e.logValidation(&ValidationError{PolicyID: def.ID, Section: "custom_data", Cause: err})
		}
	}

	return out, cfg, e.conditionSet(policy, out), changed
}

// checkInternal returns why stored internal data cannot be trusted, or "".
func (e *Engine) checkInternal(def *Definition, raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	if !json.Valid(raw) {
		return "malformed json"
	}
	if def.InternalValidate != nil && !def.InternalValidate(raw) {
		return "rejected by validator"
	}
	return ""
}

func (e *Engine) logValidation(err error) {
	e.logger.Warn("invalid policy data replaced by defaults", "error", err)
}

// conditionSet resolves the effective conditions of rec and binds custom
// predicates to them.
func (e *Engine) conditionSet(policy Policy, rec *store.Record) *conditions.Set {
	set := rec.Conditions
	if rec.UseGlobal {
		set = e.cfg.CategoryConditions[policy.Definition().Category]
	}
	if set == nil {
		return nil
	}

	preds := maps.Clone(e.cfg.Predicates)
	if pp, ok := policy.(PredicateProvider); ok {
		if preds == nil {
			preds = make(map[string]conditions.Predicate)
		}
		maps.Copy(preds, pp.Predicates())
	}
	return set.Bind(preds)
}

// persistInternal writes rt's internal data into the stored record. The
// rest of the stored record is left alone so concurrent edits survive.
func (e *Engine) persistInternal(ctx context.Context, rt *Runtime) {
	id := rt.ID()
	stored, err := e.store.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted records stay deleted.
		return
	}
	if err != nil {
		e.logger.Error("failed to load policy record", "policy_id", id, "error", err)
		return
	}
	stored.InternalData = rt.Internal()
	if err := e.store.Save(ctx, stored); err != nil {
		e.logger.Error("failed to persist policy data", "policy_id", id, "error", err)
		return
	}
	e.notifyRecord(id, stored)
}

func (e *Engine) notify(rt *Runtime) {
	e.notifyRecord(rt.ID(), rt.Record())
}

func (e *Engine) notifyRecord(id string, rec *store.Record) {
	for _, fn := range e.observers {
		fn(id, rec.Clone())
	}
}

// snapshot takes one environment snapshot for a cycle.
func (e *Engine) snapshot(ctx context.Context) (conditions.Snapshot, error) {
	if e.env == nil {
		return conditions.NewSnapshot(nil, "", conditions.LocationPrivate, e.now()), nil
	}
	snap, err := e.env.Snapshot(ctx)
	if err != nil {
		return conditions.Snapshot{}, err
	}
	if snap.Now.IsZero() {
		snap.Now = e.now()
	}
	return snap, nil
}

func (e *Engine) hasOverride(ctx context.Context, actor string) bool {
	if e.resolver == nil || e.cfg.OverrideCapability == "" {
		return false
	}
	return e.resolver.HasAccess(ctx, actor, e.cfg.OverrideCapability)
}

func (e *Engine) now() time.Time {
	return e.clock()
}

// ordered returns active runtimes by priority, then ID.
func (e *Engine) ordered() []*Runtime {
	e.amu.RLock()
	out := make([]*Runtime, 0, len(e.active))
	for _, rt := range e.active {
		out = append(out, rt)
	}
	e.amu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].def.Priority != out[j].def.Priority {
			return out[i].def.Priority < out[j].def.Priority
		}
		return out[i].def.ID < out[j].def.ID
	})
	return out
}

func (e *Engine) degradedCount() int {
	n := 0
	for _, rt := range e.ordered() {
		if rt.Degraded() {
			n++
		}
	}
	return n
}
