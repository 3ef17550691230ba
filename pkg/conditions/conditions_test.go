package conditions

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestEvaluate_EmptySet(t *testing.T) {
	snap := NewSnapshot(nil, "", LocationPrivate, time.Now())

	if !Evaluate(snap, nil) {
		t.Error("Evaluate(nil) = false, want true")
	}
	if !Evaluate(snap, &Set{}) {
		t.Error("Evaluate(empty) = false, want true")
	}
}

func TestEvaluate_ActorPresent(t *testing.T) {
	snap := NewSnapshot([]string{"carol", "alice"}, "lobby", LocationPublic, time.Now())

	tests := []struct {
		name string
		req  ActorPresent
		want bool
	}{
		{name: "all present", req: ActorPresent{IDs: []string{"alice", "carol"}}, want: true},
		{name: "one missing", req: ActorPresent{IDs: []string{"alice", "bob"}}, want: false},
		{name: "any present", req: ActorPresent{IDs: []string{"alice", "bob"}, Any: true}, want: true},
		{name: "none present", req: ActorPresent{IDs: []string{"bob"}, Any: true}, want: false},
		{name: "anyone", req: ActorPresent{}, want: true},
		{name: "negated", req: ActorPresent{IDs: []string{"bob"}, Negate: true}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			if got := Evaluate(snap, &Set{ActorPresent: &req}); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_LocationIs(t *testing.T) {
	snap := NewSnapshot(nil, "lobby", LocationPublic, time.Now())

	tests := []struct {
		name string
		req  LocationIs
		want bool
	}{
		{name: "by id", req: LocationIs{IDs: []string{"lobby"}}, want: true},
		{name: "other id", req: LocationIs{IDs: []string{"cellar"}}, want: false},
		{name: "by kind", req: LocationIs{Kind: LocationPublic}, want: true},
		{name: "wrong kind", req: LocationIs{Kind: LocationPrivate}, want: false},
		{name: "negated kind", req: LocationIs{Kind: LocationPrivate, Negate: true}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			if got := Evaluate(snap, &Set{LocationIs: &req}); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_Conjunction(t *testing.T) {
	snap := NewSnapshot([]string{"alice"}, "lobby", LocationPublic, time.Now())
	set := &Set{
		ActorPresent: &ActorPresent{IDs: []string{"alice"}},
		LocationIs:   &LocationIs{Kind: LocationPrivate},
	}

	if Evaluate(snap, set) {
		t.Error("Evaluate() = true, want false when one requirement fails")
	}
}

func TestEvaluate_Custom(t *testing.T) {
	snap := NewSnapshot([]string{"alice"}, "lobby", LocationPublic, time.Now())
	set := &Set{Custom: []Custom{{Name: "crowded"}}}

	if Evaluate(snap, set) {
		t.Error("Evaluate() with unbound predicate = true, want false")
	}

	bound := set.Bind(map[string]Predicate{
		"crowded": func(s Snapshot) bool { return len(s.Actors) >= 1 },
	})
	if !Evaluate(snap, bound) {
		t.Error("Evaluate() with bound predicate = false, want true")
	}
	if set.Custom[0].Predicate != nil {
		t.Error("Bind() modified the original set")
	}
}

func TestTimeWindow_Contains(t *testing.T) {
	// 2026-03-02 is a Monday.
	at := func(day, hour, min int) time.Time {
		return time.Date(2026, 3, day, hour, min, 0, 0, time.UTC)
	}

	tests := []struct {
		name   string
		window TimeWindow
		t      time.Time
		want   bool
	}{
		{name: "inside", window: TimeWindow{Start: "09:00", End: "17:00"}, t: at(2, 12, 0), want: true},
		{name: "at end", window: TimeWindow{Start: "09:00", End: "17:00"}, t: at(2, 17, 0), want: false},
		{name: "weekday only", window: TimeWindow{Start: "09:00", End: "17:00", Days: []int{1, 2, 3, 4, 5}}, t: at(7, 12, 0), want: false},
		{name: "overnight late", window: TimeWindow{Start: "22:00", End: "06:00"}, t: at(2, 23, 30), want: true},
		{name: "overnight early", window: TimeWindow{Start: "22:00", End: "06:00"}, t: at(3, 5, 0), want: true},
		{name: "overnight gap", window: TimeWindow{Start: "22:00", End: "06:00"}, t: at(3, 12, 0), want: false},
		{name: "overnight belongs to opening day", window: TimeWindow{Start: "22:00", End: "06:00", Days: []int{5}}, t: at(7, 2, 0), want: true},
		{name: "whole day", window: TimeWindow{Start: "00:00", End: "00:00"}, t: at(2, 3, 0), want: true},
		{name: "timezone", window: TimeWindow{Start: "09:00", End: "10:00", Timezone: "Asia/Tokyo"}, t: at(2, 0, 30), want: true},
		{name: "malformed", window: TimeWindow{Start: "9am", End: "17:00"}, t: at(2, 12, 0), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestTimeWindow_DateRange(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC)
	w := TimeWindow{Start: "00:00", End: "00:00", From: &from, Until: &until}

	if !w.Contains(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)) {
		t.Error("Contains() inside range = false, want true")
	}
	if w.Contains(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)) {
		t.Error("Contains() after range = true, want false")
	}
}

func TestSet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		set     *Set
		wantErr bool
	}{
		{name: "nil", set: nil},
		{name: "valid window", set: &Set{TimeWindow: &TimeWindow{Start: "08:00", End: "09:30", Days: []int{1, 7}}}},
		{name: "bad clock", set: &Set{TimeWindow: &TimeWindow{Start: "25:00", End: "09:30"}}, wantErr: true},
		{name: "bad day", set: &Set{TimeWindow: &TimeWindow{Start: "08:00", End: "09:30", Days: []int{0}}}, wantErr: true},
		{name: "bad kind", set: &Set{LocationIs: &LocationIs{Kind: "secret"}}, wantErr: true},
		{name: "unnamed custom", set: &Set{Custom: []Custom{{}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStaticSource_Snapshot(t *testing.T) {
	src := NewStaticSource()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	src.SetClock(func() time.Time { return now })
	src.MoveTo("lobby", LocationPublic)
	src.Enter("zed", "alice")

	snap, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Actors) != 2 || snap.Actors[0] != "alice" || snap.Actors[1] != "zed" {
		t.Errorf("Snapshot().Actors = %v, want sorted [alice zed]", snap.Actors)
	}
	if !snap.Now.Equal(now) || snap.Location != "lobby" || snap.Kind != LocationPublic {
		t.Errorf("Snapshot() = %+v", snap)
	}

	src.Leave("alice")
	snap, _ = src.Snapshot(context.Background())
	if snap.HasActor("alice") {
		t.Error("HasActor(alice) = true after Leave")
	}
}

func TestParseLimit(t *testing.T) {
	for _, s := range []string{"", "normal", "limited", "blocked"} {
		if _, err := ParseLimit(s); err != nil {
			t.Errorf("ParseLimit(%q) error = %v", s, err)
		}
	}
	if _, err := ParseLimit("frozen"); err == nil {
		t.Error("ParseLimit(frozen) error = nil, want error")
	}
	if !LimitBlocked.Blocked() || LimitLimited.Blocked() {
		t.Error("Blocked() mismatch")
	}
}

func TestTimerExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if TimerExpired(nil, now) {
		t.Error("TimerExpired(nil) = true")
	}
	if !TimerExpired(&past, now) {
		t.Error("TimerExpired(past) = false")
	}
	if TimerExpired(&future, now) {
		t.Error("TimerExpired(future) = true")
	}
}
