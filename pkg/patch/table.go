package patch

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"mercator-hq/tether/pkg/telemetry/metrics"
)

// SourceHost exposes the source text of host operations and recompiles them.
// intercept.FuncTable implements it.
type SourceHost interface {
	// Source returns the current source text of op.
	Source(op string) (string, bool)

	// Compile replaces op's implementation with the compiled form of src.
	Compile(op, src string) error
}

// Substitution is one applied pattern/replacement pair.
type Substitution struct {
	Search      string
	Replacement string
}

// Record tracks the patches applied to one operation.
// Records are never removed.
type Record struct {
	// Op is the host operation name.
	Op string

	// Original is the source text before the first patch.
	Original string

	// Current is the source text after all applied patches.
	Current string

	// Applied lists substitutions in application order.
	Applied []Substitution
}

// Table applies textual substitutions to host operation source and remembers
// what was applied so re-application is idempotent.
type Table struct {
	host    SourceHost
	metrics *metrics.Collector
	logger  *slog.Logger

	mu      sync.Mutex
	records map[string]*Record
}

// NewTable creates a patch table over host. collector may be nil.
func NewTable(host SourceHost, collector *metrics.Collector) *Table {
	return &Table{
		host:    host,
		metrics: collector,
		logger:  slog.Default().With("component", "patch.table"),
		records: make(map[string]*Record),
	}
}

// Apply replaces every occurrence of search in op's current source with
// replacement and recompiles the operation.
//
// Re-applying a recorded (search, replacement) pair is a no-op, as is a
// patch whose search text is gone while its replacement is present. If
// search is not found otherwise, Apply returns a *ConflictError and leaves
// the operation untouched.
func (t *Table) Apply(op, search, replacement string) error {
	if search == "" {
		return NewConflictError(op, search, errors.New("empty search pattern"))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	src, ok := t.host.Source(op)
	if !ok {
		return NewConflictError(op, search, ErrNoSource)
	}

	rec, exists := t.records[op]
	if exists && src != rec.Current {
		// The host redefined the operation; earlier patches are gone.
		t.logger.Debug("operation redefined, patch record reset", "op", op)
		exists = false
	}
	if !exists {
		rec = &Record{Op: op, Original: src}
	}

	if rec.applied(search, replacement) {
		t.metrics.RecordPatch(op, "noop")
		t.logger.Debug("patch already applied", "op", op)
		return nil
	}

	if !strings.Contains(src, search) {
		if replacement != "" && strings.Contains(src, replacement) {
			t.metrics.RecordPatch(op, "noop")
			t.logger.Debug("patch already present in source", "op", op)
			return nil
		}
		t.metrics.RecordPatch(op, "conflict")
		t.logger.Warn("patch target not found, host implementation changed",
			"op", op,
			"search", search,
		)
		return NewConflictError(op, search, nil)
	}

	patched := strings.ReplaceAll(src, search, replacement)
	if err := t.host.Compile(op, patched); err != nil {
		t.metrics.RecordPatch(op, "conflict")
		return NewConflictError(op, search, err)
	}

	rec.Current = patched
	rec.Applied = append(rec.Applied, Substitution{Search: search, Replacement: replacement})
	t.records[op] = rec

	t.metrics.RecordPatch(op, "applied")
	t.logger.Info("patch applied", "op", op, "patches", len(rec.Applied))
	return nil
}

// ApplyAll applies each search/replacement pair in sorted key order. A
// conflict in one pair does not stop the others; all conflicts are joined
// into the returned error.
func (t *Table) ApplyAll(op string, patches map[string]string) error {
	keys := make([]string, 0, len(patches))
	for k := range patches {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, search := range keys {
		if err := t.Apply(op, search, patches[search]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Record returns a copy of the patch record for op.
func (t *Table) Record(op string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[op]
	if !ok {
		return Record{}, false
	}
	out := *rec
	out.Applied = append([]Substitution(nil), rec.Applied...)
	return out, true
}

// Original returns op's source text as it was before the first patch.
func (t *Table) Original(op string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[op]
	if !ok {
		return "", false
	}
	return rec.Original, true
}

// Patched returns the names of all patched operations, sorted.
func (t *Table) Patched() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ops := make([]string, 0, len(t.records))
	for op := range t.records {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

func (r *Record) applied(search, replacement string) bool {
	for _, sub := range r.Applied {
		if sub.Search == search && sub.Replacement == replacement {
			return true
		}
	}
	return false
}
