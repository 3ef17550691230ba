package intercept

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Compiler turns operation source text into an implementation.
type Compiler func(src string) (Func, error)

// FuncTable is a host adapter for runtimes that expose their operations as a
// table of named, replaceable functions. It implements Host for the registry
// and the source hooks used by the patch table.
//
// Calls made through Call are diverted to an attached Dispatcher whenever the
// operation is hooked, so the host's own call sites never see the chain.
type FuncTable struct {
	mu          sync.RWMutex
	slots       map[string]*slot
	dispatcher  Dispatcher
	nextVersion uint64
}

type slot struct {
	fn      Func
	version uint64
	source  string
	compile Compiler
}

// NewFuncTable creates an empty function table.
func NewFuncTable() *FuncTable {
	return &FuncTable{
		slots: make(map[string]*slot),
	}
}

// Define installs or replaces the implementation of op. Replacing an
// operation bumps its version; an existing chain adopts the new function as
// its tail on the next call.
func (t *FuncTable) Define(op string, fn Func) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[op]
	if !ok {
		s = &slot{}
		t.slots[op] = s
	}
	t.nextVersion++
	s.fn = fn
	s.version = t.nextVersion
}

// DefineSource defines op from source text using compile. The compiler is
// kept so that patched source can be recompiled later.
func (t *FuncTable) DefineSource(op, src string, compile Compiler) error {
	if compile == nil {
		return fmt.Errorf("%w: %s", ErrCompilerMissing, op)
	}
	fn, err := compile(src)
	if err != nil {
		return fmt.Errorf("failed to compile %s: %w", op, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextVersion++
	t.slots[op] = &slot{
		fn:      fn,
		version: t.nextVersion,
		source:  src,
		compile: compile,
	}
	return nil
}

// Resolve implements Host.
func (t *FuncTable) Resolve(op string) (Func, uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.slots[op]
	if !ok || s.fn == nil {
		return nil, 0, false
	}
	return s.fn, s.version, true
}

// Source returns the current source text of op.
func (t *FuncTable) Source(op string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.slots[op]
	if !ok || s.compile == nil {
		return "", false
	}
	return s.source, true
}

// Compile replaces op's source and implementation with the compiled form of
// src, using the compiler op was defined with.
func (t *FuncTable) Compile(op, src string) error {
	t.mu.RLock()
	s, ok := t.slots[op]
	var compile Compiler
	if ok {
		compile = s.compile
	}
	t.mu.RUnlock()

	if compile == nil {
		return fmt.Errorf("%w: %s", ErrCompilerMissing, op)
	}

	fn, err := compile(src)
	if err != nil {
		return fmt.Errorf("failed to compile %s: %w", op, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok = t.slots[op]
	if !ok {
		return &UnknownOperationError{Op: op}
	}
	t.nextVersion++
	s.fn = fn
	s.source = src
	s.version = t.nextVersion
	return nil
}

// Attach routes hooked operations through d.
func (t *FuncTable) Attach(d Dispatcher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dispatcher = d
}

// Call invokes op the way the host's own call sites would.
func (t *FuncTable) Call(ctx context.Context, op string, args ...any) (any, error) {
	t.mu.RLock()
	d := t.dispatcher
	t.mu.RUnlock()

	if d != nil && d.Hooked(op) {
		return d.Invoke(ctx, op, args...)
	}

	fn, _, ok := t.Resolve(op)
	if !ok {
		return nil, &UnknownOperationError{Op: op}
	}
	return fn(ctx, args...)
}

// Ops returns the defined operation names, sorted.
func (t *FuncTable) Ops() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ops := make([]string, 0, len(t.slots))
	for op := range t.slots {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
