package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/tether/pkg/policy/engine"
	"mercator-hq/tether/pkg/store"
)

// ErrWatchUnsupported is returned by Watch when the store cannot report
// external changes.
var ErrWatchUnsupported = errors.New("store does not support watching")

// Status is a snapshot of the manager's synchronization state.
type Status struct {
	LastSync       time.Time
	LastError      error
	Syncs          uint64
	Active         []string
	CatalogVersion string
}

// Manager keeps the engine's active set in line with the record store.
type Manager struct {
	registry *Registry
	engine   *engine.Engine
	store    store.Backend
	logger   *slog.Logger

	// syncMu serializes Sync runs.
	syncMu sync.Mutex

	mu       sync.RWMutex
	lastSync time.Time
	lastErr  error
	syncs    uint64
}

// New creates a manager for eng, whose catalog must be registry.
func New(registry *Registry, eng *engine.Engine) *Manager {
	return &Manager{
		registry: registry,
		engine:   eng,
		store:    eng.Store(),
		logger:   slog.Default().With("component", "policy.manager"),
	}
}

// Registry returns the policy catalog.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Sync reconciles the engine with every stored record: enabled records
// are added or refreshed, disabled ones removed, and active policies whose
// record disappeared are removed. Records for unregistered policies are
// skipped. A failing policy does not stop the others.
func (m *Manager) Sync(ctx context.Context) error {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	start := time.Now()
	records, err := m.store.List(ctx)
	if err != nil {
		err = fmt.Errorf("list records: %w", err)
		m.finish(start, err)
		return err
	}

	var errs []error
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		seen[rec.ID] = true
		if _, ok := m.registry.Lookup(rec.ID); !ok {
			m.logger.Warn("stored record for unregistered policy ignored", "policy_id", rec.ID)
			continue
		}
		if err := m.engine.Reconcile(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("policy %s: %w", rec.ID, err))
		}
	}

	for _, id := range m.engine.Active() {
		if seen[id] {
			continue
		}
		if err := m.engine.Remove(ctx, id); err != nil && !errors.Is(err, engine.ErrNotActive) {
			errs = append(errs, fmt.Errorf("policy %s: %w", id, err))
		}
	}

	var syncErr error
	if len(errs) > 0 {
		syncErr = &SyncError{Errors: errs}
	}
	m.finish(start, syncErr)
	return syncErr
}

func (m *Manager) finish(start time.Time, err error) {
	m.mu.Lock()
	m.lastSync = time.Now()
	m.lastErr = err
	m.syncs++
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("policy sync failed", "error", err)
		return
	}
	m.logger.Info("policies synced",
		"active", len(m.engine.Active()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Watch syncs whenever the store reports an external change, until ctx is
// cancelled. Sync failures are logged and the previous state stays active.
func (m *Manager) Watch(ctx context.Context) error {
	w, ok := m.store.(store.Watcher)
	if !ok {
		return ErrWatchUnsupported
	}
	return w.Watch(ctx, func() error {
		m.logger.Info("policy records changed, syncing")
		return m.Sync(ctx)
	})
}

// Enable turns a policy on for actor, creating its default record when
// none is stored.
func (m *Manager) Enable(ctx context.Context, actor, id string) error {
	return m.setEnabled(ctx, actor, id, true)
}

// Disable turns a policy off for actor.
func (m *Manager) Disable(ctx context.Context, actor, id string) error {
	return m.setEnabled(ctx, actor, id, false)
}

func (m *Manager) setEnabled(ctx context.Context, actor, id string, enabled bool) error {
	p, err := m.registry.Get(id)
	if err != nil {
		return err
	}

	rec, err := m.store.Load(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if !enabled {
			return nil
		}
		rec = p.Definition().DefaultRecord()
	case err != nil:
		return fmt.Errorf("load record %s: %w", id, err)
	}

	rec.Enabled = enabled
	return m.engine.Update(ctx, actor, rec)
}

// Status returns the current synchronization state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		LastSync:       m.lastSync,
		LastError:      m.lastErr,
		Syncs:          m.syncs,
		Active:         m.engine.Active(),
		CatalogVersion: m.registry.Version(),
	}
}
