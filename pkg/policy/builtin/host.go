package builtin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mercator-hq/tether/pkg/audit"
	"mercator-hq/tether/pkg/intercept"
)

// Host operations defined by Sim.
const (
	OpUnlock = "Unlock"
	OpGreet  = "Greet"
)

// Host is the part of the host runtime the built-in policies read and
// change directly, outside of intercepted operations.
type Host interface {
	Now() time.Time
	LastActivity() time.Time
	Setting(name string) bool
	SetSetting(name string, value bool)
	Money() int
}

// Sim is an in-process host runtime. Its operations live in a
// FuncTable so they can be intercepted and patched like those of a real
// host.
type Sim struct {
	table *intercept.FuncTable

	mu           sync.Mutex
	clock        func() time.Time
	lastActivity time.Time
	settings     map[string]bool
	money        int
	locked       map[string]bool
}

// NewSim creates a simulated host and defines its operations in table.
func NewSim(table *intercept.FuncTable) (*Sim, error) {
	s := &Sim{
		table:    table,
		clock:    time.Now,
		settings: make(map[string]bool),
		locked:   make(map[string]bool),
	}
	s.lastActivity = s.clock()

	table.Define(OpUnlock, s.unlock)
	if err := table.DefineSource(OpGreet, "Hello, ${name}.", renderCompiler); err != nil {
		return nil, err
	}
	return s, nil
}

// renderCompiler compiles template source into an operation that renders
// it with the map[string]string passed as first argument.
func renderCompiler(src string) (intercept.Func, error) {
	return func(ctx context.Context, args ...any) (any, error) {
		vars, _ := firstArg(args).(map[string]string)
		return audit.Render(src, vars), nil
	}, nil
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

// unlock is the host implementation of OpUnlock: (actor, item string).
func (s *Sim) unlock(ctx context.Context, args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s: want 2 arguments, got %d", OpUnlock, len(args))
	}
	item, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("%s: item must be a string, got %T", OpUnlock, args[1])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked[item] {
		return false, nil
	}
	delete(s.locked, item)
	return true, nil
}

// SetClock replaces the time function.
func (s *Sim) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// Now implements Host.
func (s *Sim) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock()
}

// Act records activity of the local actor.
func (s *Sim) Act() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.clock()
}

// LastActivity implements Host.
func (s *Sim) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Setting implements Host.
func (s *Sim) Setting(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[name]
}

// SetSetting implements Host.
func (s *Sim) SetSetting(name string, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[name] = value
}

// Money implements Host.
func (s *Sim) Money() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.money
}

// AddMoney changes the balance by delta.
func (s *Sim) AddMoney(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.money += delta
}

// Lock locks item.
func (s *Sim) Lock(item string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked[item] = true
}

// Locked reports whether item is locked.
func (s *Sim) Locked(item string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked[item]
}

// Unlock asks the host to unlock item on behalf of actor, the way the
// host's own call sites would.
func (s *Sim) Unlock(ctx context.Context, actor, item string) (bool, error) {
	res, err := s.table.Call(ctx, OpUnlock, actor, item)
	if err != nil {
		return false, err
	}
	ok, _ := res.(bool)
	return ok, nil
}

// Greet renders the host's greeting for name.
func (s *Sim) Greet(ctx context.Context, name string) (string, error) {
	res, err := s.table.Call(ctx, OpGreet, map[string]string{"name": name, "greeting": "Hello"})
	if err != nil {
		return "", err
	}
	text, _ := res.(string)
	return text, nil
}
