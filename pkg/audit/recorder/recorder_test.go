package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/tether/pkg/audit"
	"mercator-hq/tether/pkg/audit/storage"
	"mercator-hq/tether/pkg/config"
	"mercator-hq/tether/pkg/telemetry/metrics"
)

// slowStorage delays writes to exercise queueing.
type slowStorage struct {
	*storage.MemoryStorage
	delay time.Duration
}

func (s *slowStorage) Store(ctx context.Context, ev *audit.Event) error {
	time.Sleep(s.delay)
	return s.MemoryStorage.Store(ctx, ev)
}

type failingStorage struct {
	*storage.MemoryStorage
}

func (failingStorage) Store(ctx context.Context, ev *audit.Event) error {
	return errors.New("disk full")
}

func TestRecorder_PreservesOrder(t *testing.T) {
	mem := storage.NewMemoryStorage()
	r := NewRecorder(&slowStorage{MemoryStorage: mem, delay: time.Millisecond}, DefaultConfig(), nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		ev := &audit.Event{
			PolicyID: "p",
			Kind:     audit.KindTrigger,
			Vars:     map[string]string{"n": fmt.Sprint(i)},
			Time:     base,
		}
		if err := r.Record(context.Background(), ev); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events, err := mem.Query(context.Background(), nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 20 {
		t.Fatalf("stored %d events, want 20", len(events))
	}
	for i, ev := range events {
		if ev.Vars["n"] != fmt.Sprint(i) {
			t.Errorf("event %d has n=%s, want %d", i, ev.Vars["n"], i)
		}
	}
}

func TestRecorder_ConcurrentRecord(t *testing.T) {
	mem := storage.NewMemoryStorage()
	r := NewRecorder(mem, DefaultConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				r.Record(context.Background(), &audit.Event{PolicyID: "p", Kind: audit.KindAttempt})
			}
		}()
	}
	wg.Wait()
	r.Close()

	n, _ := mem.Count(context.Background(), nil)
	if n != 200 {
		t.Errorf("Count() = %d, want 200", n)
	}
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	r := NewRecorder(storage.NewMemoryStorage(), DefaultConfig(), nil)
	r.Close()

	err := r.Record(context.Background(), &audit.Event{PolicyID: "p"})
	if !errors.Is(err, audit.ErrRecorderClosed) {
		t.Errorf("Record() after Close error = %v, want ErrRecorderClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRecorder_Disabled(t *testing.T) {
	mem := storage.NewMemoryStorage()
	r := NewRecorder(mem, &Config{Enabled: false}, nil)

	if err := r.Record(context.Background(), &audit.Event{PolicyID: "p"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	r.Close()

	if n, _ := mem.Count(context.Background(), nil); n != 0 {
		t.Errorf("disabled recorder stored %d events", n)
	}
}

func TestRecorder_RendersMessage(t *testing.T) {
	mem := storage.NewMemoryStorage()
	r := NewRecorder(mem, DefaultConfig(), nil)

	r.Record(context.Background(), &audit.Event{
		PolicyID: "block_unlock",
		Kind:     audit.KindAttempt,
		Template: "${actor} tried to unlock",
		Vars:     map[string]string{"actor": "alice"},
	})
	r.Close()

	events, _ := mem.Query(context.Background(), nil)
	if len(events) != 1 || events[0].Message != "alice tried to unlock" {
		t.Errorf("stored events = %+v", events)
	}
}

func TestRecorder_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{
		Enabled:   true,
		Namespace: "tether",
		Subsystem: "engine",
	}, reg)

	r := NewRecorder(storage.NewMemoryStorage(), DefaultConfig(), collector)
	r.Record(context.Background(), &audit.Event{PolicyID: "p", Kind: audit.KindTrigger})
	r.Record(context.Background(), &audit.Event{PolicyID: "p", Kind: audit.KindTrigger})
	r.Close()

	f := NewRecorder(failingStorage{storage.NewMemoryStorage()}, DefaultConfig(), collector)
	f.Record(context.Background(), &audit.Event{PolicyID: "p", Kind: audit.KindTrigger})
	f.Close()

	if n, err := testutil.GatherAndCount(reg, "tether_audit_events_total"); err != nil || n != 1 {
		t.Errorf("events_total series = %d, %v; want 1", n, err)
	}
	if n, err := testutil.GatherAndCount(reg, "tether_audit_dropped_total"); err != nil || n != 1 {
		t.Errorf("dropped_total series = %d, %v; want 1", n, err)
	}
}
