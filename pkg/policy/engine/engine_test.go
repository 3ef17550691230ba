package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"mercator-hq/tether/pkg/audit"
	"mercator-hq/tether/pkg/authority"
	"mercator-hq/tether/pkg/conditions"
	"mercator-hq/tether/pkg/store"
)

type testCatalog map[string]Policy

func (c testCatalog) Lookup(id string) (Policy, bool) {
	p, ok := c[id]
	return p, ok
}

func catalogOf(policies ...Policy) testCatalog {
	c := make(testCatalog, len(policies))
	for _, p := range policies {
		c[p.Definition().ID] = p
	}
	return c
}

// callLog records callback invocations in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// eventSink collects audit events.
type eventSink struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (s *eventSink) Record(ctx context.Context, ev *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev.Clone())
	return nil
}

func (s *eventSink) get() []*audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*audit.Event(nil), s.events...)
}

type toggleConfig struct {
	Value   int64 `json:"value"`
	Restore bool  `json:"restore"`
}

func testDefinition(id string) *Definition {
	return &Definition{
		ID:              id,
		Name:            id,
		Category:        CategoryOther,
		Loggable:        true,
		Enforceable:     true,
		DefaultEnforced: true,
		DefaultLogged:   true,
		Triggers: TriggerTexts{
			Log:        "${TARGET} triggered " + id,
			AttemptLog: "${TARGET} tried " + id,
		},
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseInactive, PhaseConditionsFalse, true},
		{PhaseInactive, PhaseConditionsTrue, false},
		{PhaseInactive, PhaseInactive, false},
		{PhaseConditionsFalse, PhaseConditionsTrue, true},
		{PhaseConditionsFalse, PhaseConditionsFalse, true},
		{PhaseConditionsTrue, PhaseConditionsFalse, true},
		{PhaseConditionsTrue, PhaseInactive, true},
		{PhaseConditionsFalse, PhaseInactive, true},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSchema_Decode(t *testing.T) {
	schema := Schema{
		{Name: "minutes", Kind: FieldInt, Default: int64(10)},
		{Name: "ratio", Kind: FieldNumber, Default: 0.5},
		{Name: "mode", Kind: FieldString, Default: "soft", Options: []string{"soft", "hard"}},
		{Name: "restore", Kind: FieldBool, Default: true},
		{Name: "actors", Kind: FieldStrings, Default: []string{}},
	}

	tests := []struct {
		name       string
		raw        map[string]any
		want       map[string]any
		wantFields []string
	}{
		{
			name: "missing fields get defaults",
			raw:  nil,
			want: map[string]any{"minutes": int64(10), "ratio": 0.5, "mode": "soft", "restore": true, "actors": []string{}},
		},
		{
			name: "valid values from yaml and json",
			raw:  map[string]any{"minutes": 15, "ratio": float64(2), "mode": "hard", "restore": false, "actors": []any{"a", "b"}},
			want: map[string]any{"minutes": int64(15), "ratio": 2.0, "mode": "hard", "restore": false, "actors": []string{"a", "b"}},
		},
		{
			name:       "invalid values revert",
			raw:        map[string]any{"minutes": 1.5, "mode": "medium", "restore": "yes", "actors": []any{1}},
			want:       map[string]any{"minutes": int64(10), "ratio": 0.5, "mode": "soft", "restore": true, "actors": []string{}},
			wantFields: []string{"actors", "minutes", "mode", "restore"},
		},
		{
			name:       "unknown keys dropped",
			raw:        map[string]any{"legacy": 1, "minutes": float64(3)},
			want:       map[string]any{"minutes": int64(3), "ratio": 0.5, "mode": "soft", "restore": true, "actors": []string{}},
			wantFields: []string{"legacy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schema.Decode("p", tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}

			if tt.wantFields == nil {
				if err != nil {
					t.Errorf("Decode() error = %v, want nil", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Decode() error = %v, want *ValidationError", err)
			}
			var fields []string
			for _, f := range verr.Fields {
				fields = append(fields, f.Field)
			}
			if !reflect.DeepEqual(fields, tt.wantFields) {
				t.Errorf("ValidationError fields = %v, want %v", fields, tt.wantFields)
			}
		})
	}
}

func TestDefinition_Validate(t *testing.T) {
	good := testDefinition("ok")
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	bad := &Definition{
		Category: "misc",
		Schema: Schema{
			{Name: "a", Kind: FieldInt, Default: "x"},
			{Name: "a", Kind: FieldBool, Default: true},
		},
	}
	if err := bad.Validate(); err == nil {
		t.Error("Validate() error = nil, want errors")
	}
}

func TestEngine_StateChangeOncePerFlip(t *testing.T) {
	ctx := context.Background()
	log := &callLog{}
	def := testDefinition("watch")
	policy := &Typed[struct{}]{
		Def: def,
		OnStateChange: func(ctx context.Context, s *State[struct{}], enforced bool) error {
			log.add("state_change:%v", enforced)
			return nil
		},
	}

	backend := store.NewMemoryBackend()
	rec := def.DefaultRecord()
	rec.Conditions = &conditions.Set{ActorPresent: &conditions.ActorPresent{IDs: []string{"alice"}}}
	if err := backend.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	env := conditions.NewStaticSource()
	e := New(DefaultConfig(), catalogOf(policy), WithStore(backend), WithEnvironment(env))
	rt, err := e.Add(ctx, "watch")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	tickN := func(n int) {
		for range n {
			if err := e.Tick(ctx); err != nil {
				t.Fatalf("Tick() error = %v", err)
			}
		}
	}

	tickN(3)
	if got := log.get(); len(got) != 0 {
		t.Fatalf("calls after absent ticks = %v, want none", got)
	}
	if rt.Phase() != PhaseConditionsFalse {
		t.Errorf("Phase() = %s, want %s", rt.Phase(), PhaseConditionsFalse)
	}

	env.Enter("alice")
	tickN(4)
	if !rt.IsEnforced() || !rt.InEffect() || !rt.IsLogged() {
		t.Errorf("flags = enforced %v, in effect %v, logged %v; want all true",
			rt.IsEnforced(), rt.InEffect(), rt.IsLogged())
	}

	env.Leave("alice")
	tickN(3)

	want := []string{"state_change:true", "state_change:false"}
	if got := log.get(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if rt.InEffect() || rt.IsEnforced() {
		t.Error("policy still in effect after conditions stopped holding")
	}
}

func TestEngine_TriggerEventsInOrder(t *testing.T) {
	ctx := context.Background()
	sink := &eventSink{}
	def := testDefinition("audit")
	e := New(DefaultConfig(), catalogOf(&Typed[struct{}]{Def: def}), WithSink(sink))

	rt, err := e.Add(ctx, "audit")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	calls := []struct {
		attempt bool
		target  string
	}{
		{false, "alice"},
		{true, "bob"},
		{true, ""},
		{false, "carol"},
	}
	for i, c := range calls {
		vars := map[string]string{"N": fmt.Sprint(i)}
		if c.attempt {
			err = rt.TriggerAttempt(ctx, c.target, vars)
		} else {
			err = rt.Trigger(ctx, c.target, vars)
		}
		if err != nil {
			t.Fatalf("trigger %d error = %v", i, err)
		}
	}

	events := sink.get()
	if len(events) != len(calls) {
		t.Fatalf("got %d events, want %d", len(events), len(calls))
	}
	for i, c := range calls {
		ev := events[i]
		wantKind, wantTemplate := audit.KindTrigger, def.Triggers.Log
		if c.attempt {
			wantKind, wantTemplate = audit.KindAttempt, def.Triggers.AttemptLog
		}
		if ev.Kind != wantKind || ev.Template != wantTemplate || ev.PolicyID != "audit" {
			t.Errorf("event %d = %+v, want kind %s", i, ev, wantKind)
		}
		if ev.Vars["N"] != fmt.Sprint(i) {
			t.Errorf("event %d vars = %v, want N=%d", i, ev.Vars, i)
		}
		if c.target == "" && ev.TargetID != nil {
			t.Errorf("event %d TargetID = %v, want nil", i, *ev.TargetID)
		}
		if c.target != "" && (ev.TargetID == nil || *ev.TargetID != c.target) {
			t.Errorf("event %d TargetID = %v, want %s", i, ev.TargetID, c.target)
		}
	}
	if rt.LastTrigger().IsZero() {
		t.Error("LastTrigger() is zero after triggering")
	}
}

func TestEngine_TriggerRespectsLogToggle(t *testing.T) {
	ctx := context.Background()
	sink := &eventSink{}
	def := testDefinition("quiet")
	def.DefaultLogged = false
	e := New(DefaultConfig(), catalogOf(&Typed[struct{}]{Def: def}), WithSink(sink))

	rt, err := e.Add(ctx, "quiet")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := rt.Trigger(ctx, "alice", nil); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if got := len(sink.get()); got != 0 {
		t.Errorf("events = %d, want 0 with logging off", got)
	}
}

func TestEngine_DedupFlagTriggersOnce(t *testing.T) {
	ctx := context.Background()
	sink := &eventSink{}
	lastAction := time.Now().Add(-time.Hour)

	def := testDefinition("idle")
	def.DefaultLimit = conditions.LimitLimited
	def.Schema = Schema{{Name: "minutes", Kind: FieldInt, Default: int64(10)}}
	def.InternalDefault = func() any { return false }

	type idleConfig struct {
		Minutes int64 `json:"minutes"`
	}
	policy := &Typed[idleConfig]{
		Def: def,
		OnTick: func(ctx context.Context, s *State[idleConfig]) (bool, error) {
			var reported bool
			if err := s.DecodeInternal(&reported); err != nil {
				return false, err
			}
			limit := time.Duration(s.Config().Minutes) * time.Minute
			if reported || time.Since(lastAction) <= limit {
				return false, nil
			}
			if err := s.SetInternal(true); err != nil {
				return false, err
			}
			return true, s.Trigger(ctx, "", map[string]string{"MINUTES": "10"})
		},
	}

	backend := store.NewMemoryBackend()
	e := New(DefaultConfig(), catalogOf(policy), WithSink(sink), WithStore(backend))
	if _, err := e.Add(ctx, "idle"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	for range 3 {
		if err := e.Tick(ctx); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}

	if got := len(sink.get()); got != 1 {
		t.Errorf("trigger events = %d, want 1", got)
	}
	stored, err := backend.Load(ctx, "idle")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(stored.InternalData) != "true" {
		t.Errorf("stored internal data = %s, want true", stored.InternalData)
	}
	if stored.Limit != conditions.LimitLimited {
		t.Errorf("stored limit = %s, want limited", stored.Limit)
	}
}

func TestEngine_RemoveRestoresSnapshot(t *testing.T) {
	tests := []struct {
		name     string
		restore  bool
		wantHost int
	}{
		{name: "restore", restore: true, wantHost: 1},
		{name: "keep", restore: false, wantHost: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			log := &callLog{}
			host := 1

			def := testDefinition("force")
			def.Category = CategorySetting
			def.Schema = Schema{
				{Name: "value", Kind: FieldInt, Default: int64(5)},
				{Name: "restore", Kind: FieldBool, Default: true},
			}
			def.InternalDefault = func() any { return host }

			policy := &Typed[toggleConfig]{
				Def: def,
				OnStateChange: func(ctx context.Context, s *State[toggleConfig], enforced bool) error {
					log.add("state_change:%v", enforced)
					if enforced {
						return s.SetInternal(host)
					}
					var snapshot int
					if err := s.DecodeInternal(&snapshot); err != nil {
						return err
					}
					if s.Config().Restore {
						host = snapshot
					}
					return nil
				},
				OnTick: func(ctx context.Context, s *State[toggleConfig]) (bool, error) {
					if want := int(s.Config().Value); s.IsEnforced() && host != want {
						host = want
						log.add("tick:set")
						return true, nil
					}
					return false, nil
				},
				OnUnload: func(ctx context.Context, s *State[toggleConfig]) error {
					log.add("unload")
					return nil
				},
			}

			backend := store.NewMemoryBackend()
			rec := def.DefaultRecord()
			rec.CustomData["restore"] = tt.restore
			if err := backend.Save(ctx, rec); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			e := New(DefaultConfig(), catalogOf(policy), WithStore(backend))
			if _, err := e.Add(ctx, "force"); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			for range 2 {
				if err := e.Tick(ctx); err != nil {
					t.Fatalf("Tick() error = %v", err)
				}
			}
			if host != 5 {
				t.Fatalf("host = %d after ticks, want 5", host)
			}

			if err := e.Remove(ctx, "force"); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}

			want := []string{"state_change:true", "tick:set", "state_change:false", "unload"}
			if got := log.get(); !reflect.DeepEqual(got, want) {
				t.Errorf("calls = %v, want %v", got, want)
			}
			if host != tt.wantHost {
				t.Errorf("host = %d, want %d", host, tt.wantHost)
			}
			if _, ok := e.Get("force"); ok {
				t.Error("Get() found removed policy")
			}
			if err := e.Remove(ctx, "force"); !errors.Is(err, ErrNotActive) {
				t.Errorf("second Remove() error = %v, want ErrNotActive", err)
			}
		})
	}
}

func TestEngine_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	var healthyTicks int

	panicky := testDefinition("a_panics")
	failing := testDefinition("b_fails")
	healthy := testDefinition("c_healthy")

	e := New(DefaultConfig(), catalogOf(
		&Typed[struct{}]{
			Def: panicky,
			OnTick: func(ctx context.Context, s *State[struct{}]) (bool, error) {
				panic("boom")
			},
		},
		&Typed[struct{}]{
			Def: failing,
			OnStateChange: func(ctx context.Context, s *State[struct{}], enforced bool) error {
				return errors.New("host unavailable")
			},
		},
		&Typed[struct{}]{
			Def: healthy,
			OnTick: func(ctx context.Context, s *State[struct{}]) (bool, error) {
				healthyTicks++
				return false, nil
			},
		},
	))

	for _, id := range []string{"a_panics", "b_fails", "c_healthy"} {
		if _, err := e.Add(ctx, id); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}
	for range 2 {
		if err := e.Tick(ctx); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}

	if healthyTicks != 2 {
		t.Errorf("healthy ticks = %d, want 2", healthyTicks)
	}

	a, _ := e.Get("a_panics")
	var cbErr *LifecycleCallbackError
	if !a.Degraded() || !errors.As(a.LastError(), &cbErr) {
		t.Fatalf("a_panics degraded = %v, error = %v", a.Degraded(), a.LastError())
	}
	if cbErr.Callback != "tick" || cbErr.Panic == nil {
		t.Errorf("LifecycleCallbackError = %+v, want tick panic", cbErr)
	}

	b, _ := e.Get("b_fails")
	if !b.Degraded() || !errors.As(b.LastError(), &cbErr) || cbErr.Callback != "state_change" {
		t.Errorf("b_fails error = %v, want state_change failure", b.LastError())
	}
	if !b.IsEnforced() {
		t.Error("failed StateChange must not undo the transition")
	}

	c, _ := e.Get("c_healthy")
	if c.Degraded() {
		t.Error("c_healthy degraded, want healthy")
	}
}

func TestEngine_InvalidDataRevertsToDefaults(t *testing.T) {
	ctx := context.Background()
	def := testDefinition("validated")
	def.Schema = Schema{
		{Name: "value", Kind: FieldInt, Default: int64(5)},
		{Name: "restore", Kind: FieldBool, Default: true},
	}
	def.InternalDefault = func() any { return 7 }
	def.InternalValidate = func(raw json.RawMessage) bool {
		var n int
		return json.Unmarshal(raw, &n) == nil
	}

	backend := store.NewMemoryBackend()
	err := backend.Save(ctx, &store.Record{
		ID:           "validated",
		Enabled:      true,
		Enforced:     true,
		Limit:        "sometimes",
		CustomData:   map[string]any{"value": "nope", "restore": false, "extra": 1},
		InternalData: json.RawMessage(`"text"`),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var cfg toggleConfig
	e := New(DefaultConfig(), catalogOf(&Typed[toggleConfig]{
		Def: def,
		OnLoad: func(ctx context.Context, s *State[toggleConfig]) error {
			cfg = s.Config()
			return nil
		},
	}), WithStore(backend))

	rt, err := e.Add(ctx, "validated")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	wantCustom := map[string]any{"value": int64(5), "restore": false}
	if got := rt.Custom(); !reflect.DeepEqual(got, wantCustom) {
		t.Errorf("Custom() = %v, want %v", got, wantCustom)
	}
	if got := string(rt.Internal()); got != "7" {
		t.Errorf("Internal() = %s, want 7", got)
	}
	if got := rt.Record().Limit; got != conditions.LimitNormal {
		t.Errorf("Limit = %s, want normal", got)
	}
	if cfg != (toggleConfig{Value: 5, Restore: false}) {
		t.Errorf("Config() = %+v", cfg)
	}

	stored, err := backend.Load(ctx, "validated")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := stored.CustomData["extra"]; ok {
		t.Error("stored record still has unknown key")
	}
	if string(stored.InternalData) != "7" {
		t.Errorf("stored internal data = %s, want 7", stored.InternalData)
	}
}

func TestEngine_LimitBlocked(t *testing.T) {
	ctx := context.Background()
	def := testDefinition("blocked")
	backend := store.NewMemoryBackend()
	rec := def.DefaultRecord()
	rec.Limit = conditions.LimitBlocked
	if err := backend.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ticked := false
	e := New(DefaultConfig(), catalogOf(&Typed[struct{}]{
		Def: def,
		OnTick: func(ctx context.Context, s *State[struct{}]) (bool, error) {
			ticked = true
			return false, nil
		},
	}), WithStore(backend))

	rt, err := e.Add(ctx, "blocked")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if !rt.ConditionsHold() {
		t.Error("ConditionsHold() = false, want true for empty conditions")
	}
	if rt.InEffect() || rt.IsEnforced() || ticked {
		t.Errorf("blocked policy in effect = %v, enforced = %v, ticked = %v", rt.InEffect(), rt.IsEnforced(), ticked)
	}
}

func TestEngine_Override(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		selfOverride bool
		wantEnforced bool
	}{
		{name: "local actor without override", selfOverride: false, wantEnforced: true},
		{name: "local actor with override", selfOverride: true, wantEnforced: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := authority.NewStaticSource()
			source.Set("alice", authority.Owner)
			source.Set("bob", authority.Friend)
			resolver := authority.NewResolver("self", source)
			resolver.SetSetting("override", authority.Setting{Min: authority.Owner, Self: tt.selfOverride, Floor: authority.Public})

			def := testDefinition("guarded")
			e := New(DefaultConfig(), catalogOf(&Typed[struct{}]{Def: def}), WithResolver(resolver))
			rt, err := e.Add(ctx, "guarded")
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if err := e.Tick(ctx); err != nil {
				t.Fatalf("Tick() error = %v", err)
			}

			if !rt.InEffect() {
				t.Fatal("InEffect() = false, want true")
			}
			if got := rt.IsEnforced(); got != tt.wantEnforced {
				t.Errorf("IsEnforced() = %v, want %v", got, tt.wantEnforced)
			}
			if rt.IsEnforcedFor(ctx, "alice") {
				t.Error("IsEnforcedFor(alice) = true, want false for override holder")
			}
			if got := rt.IsEnforcedFor(ctx, "bob"); got != tt.wantEnforced {
				t.Errorf("IsEnforcedFor(bob) = %v, want %v", got, tt.wantEnforced)
			}
		})
	}
}

func TestEngine_TimerExpiry(t *testing.T) {
	tests := []struct {
		name        string
		timerRemove bool
	}{
		{name: "disable", timerRemove: false},
		{name: "remove", timerRemove: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			def := testDefinition("timed")
			backend := store.NewMemoryBackend()
			rec := def.DefaultRecord()
			expired := time.Now().Add(-time.Minute)
			rec.Timer = &expired
			rec.TimerRemove = tt.timerRemove
			if err := backend.Save(ctx, rec); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			unloaded := false
			e := New(DefaultConfig(), catalogOf(&Typed[struct{}]{
				Def: def,
				OnUnload: func(ctx context.Context, s *State[struct{}]) error {
					unloaded = true
					return nil
				},
			}), WithStore(backend))
			if _, err := e.Add(ctx, "timed"); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if err := e.Tick(ctx); err != nil {
				t.Fatalf("Tick() error = %v", err)
			}

			if len(e.Active()) != 0 || !unloaded {
				t.Fatalf("Active() = %v, unloaded = %v; want expired policy removed", e.Active(), unloaded)
			}

			stored, err := backend.Load(ctx, "timed")
			if tt.timerRemove {
				if !errors.Is(err, store.ErrNotFound) {
					t.Errorf("Load() error = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if stored.Enabled || stored.Timer != nil {
				t.Errorf("stored = enabled %v, timer %v; want disabled without timer", stored.Enabled, stored.Timer)
			}
		})
	}
}

func TestEngine_DeferredTasks(t *testing.T) {
	ctx := context.Background()
	e := New(DefaultConfig(), catalogOf(
		&Typed[struct{}]{Def: testDefinition("kept")},
		&Typed[struct{}]{Def: testDefinition("dropped")},
	))
	defer e.Close(ctx)

	kept, err := e.Add(ctx, "kept")
	if err != nil {
		t.Fatalf("Add(kept) error = %v", err)
	}
	dropped, err := e.Add(ctx, "dropped")
	if err != nil {
		t.Fatalf("Add(dropped) error = %v", err)
	}

	ran := make(chan string, 2)
	dropped.After(20*time.Millisecond, func(ctx context.Context, rt *Runtime) {
		ran <- rt.ID()
	})
	if err := e.Remove(ctx, "dropped"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	// Re-adding creates a new activation; the old task must still be dropped.
	if _, err := e.Add(ctx, "dropped"); err != nil {
		t.Fatalf("Add(dropped) again error = %v", err)
	}

	kept.After(10*time.Millisecond, func(ctx context.Context, rt *Runtime) {
		ran <- rt.ID()
	})

	select {
	case id := <-ran:
		if id != "kept" {
			t.Fatalf("deferred task ran for %s, want kept", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("deferred task did not run")
	}

	select {
	case id := <-ran:
		t.Errorf("deferred task ran for %s after its policy was removed", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEngine_InitOncePerSession(t *testing.T) {
	ctx := context.Background()
	log := &callLog{}
	e := New(DefaultConfig(), catalogOf(&Typed[struct{}]{
		Def: testDefinition("lifecycle"),
		OnInit: func(ctx context.Context, s *State[struct{}]) error {
			log.add("init")
			return nil
		},
		OnLoad: func(ctx context.Context, s *State[struct{}]) error {
			log.add("load")
			return nil
		},
		OnUnload: func(ctx context.Context, s *State[struct{}]) error {
			log.add("unload")
			return nil
		},
	}))

	for range 2 {
		if _, err := e.Add(ctx, "lifecycle"); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if _, err := e.Add(ctx, "lifecycle"); !errors.Is(err, ErrAlreadyActive) {
			t.Errorf("duplicate Add() error = %v, want ErrAlreadyActive", err)
		}
		if err := e.Remove(ctx, "lifecycle"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
	}

	want := []string{"init", "load", "unload", "load", "unload"}
	if got := log.get(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if _, err := e.Add(ctx, "missing"); !errors.Is(err, ErrUnknownPolicy) {
		t.Errorf("Add(missing) error = %v, want ErrUnknownPolicy", err)
	}
}

func TestEngine_ReconcileAndUpdate(t *testing.T) {
	ctx := context.Background()
	source := authority.NewStaticSource()
	source.Set("alice", authority.Owner)
	resolver := authority.NewResolver("self", source)
	resolver.SetSetting("limited", authority.Setting{Min: authority.Owner, Floor: authority.Public})

	def := testDefinition("editable")
	backend := store.NewMemoryBackend()
	var changes []string
	e := New(DefaultConfig(), catalogOf(&Typed[struct{}]{Def: def}),
		WithStore(backend), WithResolver(resolver))
	e.OnChange(func(id string, rec *store.Record) {
		changes = append(changes, id)
	})

	rec := def.DefaultRecord()
	rec.Limit = conditions.LimitLimited
	if err := backend.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := e.Reconcile(ctx, rec); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	rt, ok := e.Get("editable")
	if !ok {
		t.Fatal("Reconcile() did not add enabled policy")
	}

	if err := e.CanEdit(ctx, "alice", "editable"); err != nil {
		t.Errorf("CanEdit(alice) error = %v", err)
	}
	if err := e.CanEdit(ctx, "self", "editable"); !errors.Is(err, ErrEditDenied) {
		t.Errorf("CanEdit(self) error = %v, want ErrEditDenied", err)
	}

	update := rec.Clone()
	update.Enforced = false
	if err := e.Update(ctx, "self", update); !errors.Is(err, ErrEditDenied) {
		t.Errorf("Update(self) error = %v, want ErrEditDenied", err)
	}
	if err := e.Update(ctx, "alice", update); err != nil {
		t.Fatalf("Update(alice) error = %v", err)
	}
	if rt.Record().Enforced {
		t.Error("active record still enforced after update")
	}
	if rt.IsEnforced() {
		t.Error("IsEnforced() = true after enforcement toggle was turned off")
	}

	disabled := update.Clone()
	disabled.Enabled = false
	if err := e.Update(ctx, "alice", disabled); err != nil {
		t.Fatalf("Update(disable) error = %v", err)
	}
	if _, ok := e.Get("editable"); ok {
		t.Error("disabled policy still active")
	}
	stored, err := backend.Load(ctx, "editable")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if stored.Enabled {
		t.Error("removal re-enabled the stored record")
	}
	if len(changes) == 0 {
		t.Error("OnChange observer was never called")
	}
}

func TestEngine_Close(t *testing.T) {
	ctx := context.Background()
	log := &callLog{}
	e := New(DefaultConfig(), catalogOf(&Typed[struct{}]{
		Def: testDefinition("closing"),
		OnStateChange: func(ctx context.Context, s *State[struct{}], enforced bool) error {
			log.add("state_change:%v", enforced)
			return nil
		},
		OnUnload: func(ctx context.Context, s *State[struct{}]) error {
			log.add("unload")
			return nil
		},
	}))

	if _, err := e.Add(ctx, "closing"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	want := []string{"state_change:true", "state_change:false", "unload"}
	if got := log.get(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if err := e.Tick(ctx); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Tick() after Close error = %v, want ErrEngineClosed", err)
	}
	if _, err := e.Add(ctx, "closing"); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Add() after Close error = %v, want ErrEngineClosed", err)
	}
}

func TestEngine_CustomPredicatesAndGlobalConditions(t *testing.T) {
	ctx := context.Background()
	raining := false

	cfg := DefaultConfig()
	cfg.CategoryConditions = map[Category]*conditions.Set{
		CategoryOther: {Custom: []conditions.Custom{{Name: "raining"}}},
	}

	def := testDefinition("weather")
	backend := store.NewMemoryBackend()
	rec := def.DefaultRecord()
	rec.UseGlobal = true
	if err := backend.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	e := New(cfg, catalogOf(&Typed[struct{}]{
		Def: def,
		Preds: map[string]conditions.Predicate{
			"raining": func(conditions.Snapshot) bool { return raining },
		},
	}), WithStore(backend))

	rt, err := e.Add(ctx, "weather")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if rt.InEffect() {
		t.Error("InEffect() = true while predicate is false")
	}

	raining = true
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if !rt.InEffect() {
		t.Error("InEffect() = false while predicate is true")
	}
}
