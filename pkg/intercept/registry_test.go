package intercept

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"mercator-hq/tether/pkg/config"
	"mercator-hq/tether/pkg/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestHost returns a host with a single operation that appends "original"
// to the trace and returns "original".
func newTestHost(op string, trace *[]string) *FuncTable {
	host := NewFuncTable()
	host.Define(op, func(ctx context.Context, args ...any) (any, error) {
		*trace = append(*trace, "original")
		return "original", nil
	})
	return host
}

func tracing(name string, trace *[]string) Interceptor {
	return func(ctx context.Context, call *Call, next Next) (any, error) {
		*trace = append(*trace, name)
		return next(ctx, call.Args...)
	}
}

func TestRegistry_PriorityOrder(t *testing.T) {
	var trace []string
	host := newTestHost("Op", &trace)
	r := NewRegistry(host)

	// Installed out of order on purpose.
	if _, err := r.Install("Op", 10, tracing("f2", &trace)); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if _, err := r.Install("Op", 1, tracing("f1", &trace)); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		trace = nil
		got, err := r.Invoke(context.Background(), "Op")
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		if got != "original" {
			t.Errorf("Invoke() = %v, want original", got)
		}
		want := []string{"f1", "f2", "original"}
		if !reflect.DeepEqual(trace, want) {
			t.Errorf("call %d order = %v, want %v", i, trace, want)
		}
	}
}

func TestRegistry_TiesBrokenByRegistrationOrder(t *testing.T) {
	var trace []string
	r := NewRegistry(newTestHost("Op", &trace))

	r.Install("Op", 5, tracing("a", &trace), WithModule("a"))
	r.Install("Op", 5, tracing("b", &trace), WithModule("b"))
	r.Install("Op", 5, tracing("c", &trace), WithModule("c"))

	if _, err := r.Invoke(context.Background(), "Op"); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	want := []string{"a", "b", "c", "original"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("order = %v, want %v", trace, want)
	}
}

func TestRegistry_UnlockShortCircuit(t *testing.T) {
	originalCalled := false
	host := NewFuncTable()
	host.Define("Unlock", func(ctx context.Context, args ...any) (any, error) {
		originalCalled = true
		return true, nil
	})
	r := NewRegistry(host)
	host.Attach(r)

	_, err := r.Install("Unlock", 0, func(ctx context.Context, call *Call, next Next) (any, error) {
		return false, nil
	})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	got, err := host.Call(context.Background(), "Unlock", "door")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != false {
		t.Errorf("Call() = %v, want false", got)
	}
	if originalCalled {
		t.Error("original Unlock ran despite short-circuit")
	}
}

func TestRegistry_ReinstallReplaces(t *testing.T) {
	var trace []string
	r := NewRegistry(newTestHost("Op", &trace))

	r.Install("Op", 1, tracing("first", &trace))
	r.Install("Op", 2, tracing("other", &trace))
	old, _ := r.Install("Op", 3, tracing("v1", &trace))
	r.Install("Op", 3, tracing("v2", &trace))

	if got := len(r.Interceptors("Op")); got != 3 {
		t.Fatalf("Interceptors() len = %d, want 3", got)
	}

	if _, err := r.Invoke(context.Background(), "Op"); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	want := []string{"first", "other", "v2", "original"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("order = %v, want %v", trace, want)
	}

	if old.Remove() {
		t.Error("Remove() on replaced handle = true, want false")
	}
}

func TestRegistry_ArgumentRewrite(t *testing.T) {
	host := NewFuncTable()
	host.Define("Add", func(ctx context.Context, args ...any) (any, error) {
		return args[0].(int) + args[1].(int), nil
	})
	r := NewRegistry(host)

	r.Install("Add", 0, func(ctx context.Context, call *Call, next Next) (any, error) {
		return next(ctx, call.Arg(0), 100)
	})
	r.Install("Add", 1, func(ctx context.Context, call *Call, next Next) (any, error) {
		res, err := next(ctx, call.Args...)
		return res.(int) * 2, err
	})

	got, err := r.Invoke(context.Background(), "Add", 1, 2)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != 202 {
		t.Errorf("Invoke() = %v, want 202", got)
	}
}

func TestRegistry_HostReplacementBecomesTail(t *testing.T) {
	host := NewFuncTable()
	host.Define("Greet", func(ctx context.Context, args ...any) (any, error) {
		return "v1", nil
	})
	r := NewRegistry(host)
	host.Attach(r)

	var seen []any
	r.Install("Greet", 0, func(ctx context.Context, call *Call, next Next) (any, error) {
		res, err := next(ctx)
		seen = append(seen, res)
		return res, err
	})

	if got, _ := host.Call(context.Background(), "Greet"); got != "v1" {
		t.Fatalf("Call() = %v, want v1", got)
	}

	host.Define("Greet", func(ctx context.Context, args ...any) (any, error) {
		return "v2", nil
	})

	if got, _ := host.Call(context.Background(), "Greet"); got != "v2" {
		t.Errorf("Call() after host replacement = %v, want v2", got)
	}
	if !reflect.DeepEqual(seen, []any{"v1", "v2"}) {
		t.Errorf("interceptor saw %v, want [v1 v2]", seen)
	}
}

func TestRegistry_InterceptorErrorPropagates(t *testing.T) {
	var trace []string
	r := NewRegistry(newTestHost("Op", &trace))
	boom := errors.New("boom")

	r.Install("Op", 0, tracing("outer", &trace))
	r.Install("Op", 1, func(ctx context.Context, call *Call, next Next) (any, error) {
		return nil, boom
	}, WithModule("faulty"))

	_, err := r.Invoke(context.Background(), "Op")
	if !errors.Is(err, boom) {
		t.Fatalf("Invoke() error = %v, want wrapping %v", err, boom)
	}
	var ie *InterceptorError
	if !errors.As(err, &ie) {
		t.Fatalf("Invoke() error type = %T, want *InterceptorError", err)
	}
	if ie.Priority != 1 || ie.Module != "faulty" {
		t.Errorf("InterceptorError = %+v, want priority 1 module faulty", ie)
	}
	if len(trace) != 1 || trace[0] != "outer" {
		t.Errorf("trace = %v, want [outer]", trace)
	}
}

func TestRegistry_PanicReachesCaller(t *testing.T) {
	var trace []string
	r := NewRegistry(newTestHost("Op", &trace))
	r.Install("Op", 0, func(ctx context.Context, call *Call, next Next) (any, error) {
		panic("interceptor bug")
	})

	defer func() {
		if got := recover(); got != "interceptor bug" {
			t.Errorf("recover() = %v, want %q", got, "interceptor bug")
		}
		if len(trace) != 0 {
			t.Errorf("trace = %v, want host not called", trace)
		}
	}()
	_, _ = r.Invoke(context.Background(), "Op")
	t.Error("Invoke() returned, want panic")
}

func TestRegistry_HostErrorNotWrapped(t *testing.T) {
	hostErr := errors.New("host failure")
	host := NewFuncTable()
	host.Define("Op", func(ctx context.Context, args ...any) (any, error) {
		return nil, hostErr
	})
	r := NewRegistry(host)
	r.Install("Op", 0, func(ctx context.Context, call *Call, next Next) (any, error) {
		return next(ctx, call.Args...)
	})

	_, err := r.Invoke(context.Background(), "Op")
	if err != hostErr {
		t.Errorf("Invoke() error = %v, want host error unchanged", err)
	}
}

func TestRegistry_UnknownOperation(t *testing.T) {
	r := NewRegistry(NewFuncTable())

	_, err := r.Invoke(context.Background(), "Missing")
	if !errors.Is(err, ErrUnknownOperation) {
		t.Errorf("Invoke() error = %v, want ErrUnknownOperation", err)
	}
}

func TestRegistry_InstallValidation(t *testing.T) {
	r := NewRegistry(NewFuncTable())

	if _, err := r.Install("Op", 0, nil); !errors.Is(err, ErrNilInterceptor) {
		t.Errorf("Install(nil) error = %v, want ErrNilInterceptor", err)
	}
	if _, err := r.Install("", 0, tracing("x", new([]string))); err == nil {
		t.Error("Install(\"\") error = nil, want error")
	}
}

func TestRegistry_SnapshotDuringNestedInstall(t *testing.T) {
	var trace []string
	host := newTestHost("Op", &trace)
	r := NewRegistry(host)

	installed := false
	r.Install("Op", 0, func(ctx context.Context, call *Call, next Next) (any, error) {
		trace = append(trace, "installer")
		if !installed {
			installed = true
			r.Install("Op", 5, tracing("late", &trace))
		}
		return next(ctx, call.Args...)
	})

	r.Invoke(context.Background(), "Op")
	want := []string{"installer", "original"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("first call = %v, want %v", trace, want)
	}

	trace = nil
	r.Invoke(context.Background(), "Op")
	want = []string{"installer", "late", "original"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("second call = %v, want %v", trace, want)
	}
}

func TestRegistry_ReentrancyGuard(t *testing.T) {
	host := NewFuncTable()
	r := NewRegistry(host)
	host.Attach(r)

	// Recursive host operation: counts down to zero through the host table.
	host.Define("Countdown", func(ctx context.Context, args ...any) (any, error) {
		n := args[0].(int)
		if n == 0 {
			return 0, nil
		}
		return host.Call(ctx, "Countdown", n-1)
	})

	guarded, unguarded := 0, 0
	r.Install("Countdown", 0, func(ctx context.Context, call *Call, next Next) (any, error) {
		guarded++
		return next(ctx, call.Args...)
	}, WithModule("guarded"), WithReentrancyGuard())
	r.Install("Countdown", 0, func(ctx context.Context, call *Call, next Next) (any, error) {
		unguarded++
		return next(ctx, call.Args...)
	}, WithModule("plain"))

	if _, err := host.Call(context.Background(), "Countdown", 3); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if guarded != 1 {
		t.Errorf("guarded interceptor ran %d times, want 1", guarded)
	}
	if unguarded != 4 {
		t.Errorf("unguarded interceptor ran %d times, want 4", unguarded)
	}
	if got := r.CallCount("Countdown"); got != 4 {
		t.Errorf("CallCount() = %d, want 4", got)
	}
}

func TestRegistry_DepthVisibleToInterceptor(t *testing.T) {
	host := NewFuncTable()
	r := NewRegistry(host)
	host.Attach(r)
	host.Define("Echo", func(ctx context.Context, args ...any) (any, error) {
		return Depth(ctx, "Echo"), nil
	})

	var depth int
	r.Install("Echo", 0, func(ctx context.Context, call *Call, next Next) (any, error) {
		depth = call.Depth
		return next(ctx)
	})

	got, _ := host.Call(context.Background(), "Echo")
	if depth != 1 || got != 1 {
		t.Errorf("depth = %d, tail saw %v; want 1 and 1", depth, got)
	}
}

func TestRegistry_RemoveModuleAndHandle(t *testing.T) {
	var trace []string
	r := NewRegistry(newTestHost("Op", &trace))

	h, _ := r.Install("Op", 0, tracing("a", &trace), WithModule("rules"))
	r.Install("Op", 1, tracing("b", &trace), WithModule("rules"))
	r.Install("Op", 2, tracing("c", &trace), WithModule("misc"))

	if got := r.RemoveModule("rules"); got != 2 {
		t.Errorf("RemoveModule() = %d, want 2", got)
	}
	if h.Remove() {
		t.Error("Remove() after RemoveModule = true, want false")
	}

	r.Invoke(context.Background(), "Op")
	want := []string{"c", "original"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("order = %v, want %v", trace, want)
	}
}

func TestRegistry_TrackRoutesHostCalls(t *testing.T) {
	var trace []string
	host := newTestHost("Sensory", &trace)
	r := NewRegistry(host)
	host.Attach(r)

	if r.Hooked("Sensory") {
		t.Fatal("Hooked() = true before Track")
	}
	r.Track("Sensory")
	if !r.Hooked("Sensory") {
		t.Fatal("Hooked() = false after Track")
	}

	host.Call(context.Background(), "Sensory")
	host.Call(context.Background(), "Sensory")

	if got := r.CallCount("Sensory"); got != 2 {
		t.Errorf("CallCount() = %d, want 2", got)
	}
	if got := r.Ops(); !reflect.DeepEqual(got, []string{"Sensory"}) {
		t.Errorf("Ops() = %v, want [Sensory]", got)
	}
}

func TestRegistry_Metrics(t *testing.T) {
	var trace []string
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, prometheus.NewRegistry())
	r := NewRegistry(newTestHost("Op", &trace), WithMetrics(collector))

	r.Install("Op", 0, func(ctx context.Context, call *Call, next Next) (any, error) {
		if call.Arg(0) == "deny" {
			return nil, nil
		}
		return next(ctx, call.Args...)
	})

	r.Invoke(context.Background(), "Op", "deny")
	r.Invoke(context.Background(), "Op", "allow")

	out, err := testutil.GatherAndCount(collector.Registry(), "test_intercept_calls_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if out != 2 {
		t.Errorf("calls_total series = %d, want 2 (next and short_circuit)", out)
	}
}
