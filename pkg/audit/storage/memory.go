package storage

import (
	"context"
	"sort"
	"sync"

	"mercator-hq/tether/pkg/audit"
)

// MemoryStorage implements audit.Storage in memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []*audit.Event
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store implements audit.Storage.
func (m *MemoryStorage) Store(ctx context.Context, ev *audit.Event) error {
	if ev == nil {
		return audit.NewStorageError("memory", "store", audit.ErrInvalidQuery)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev.Clone())
	return nil
}

// Query implements audit.Storage. Events with equal times keep insertion order.
func (m *MemoryStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.Event, error) {
	if q == nil {
		q = &audit.Query{}
	}

	m.mu.RLock()
	matched := m.filter(q)
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if q.Desc {
			return matched[i].Time.After(matched[j].Time)
		}
		return matched[i].Time.Before(matched[j].Time)
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []*audit.Event{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	out := make([]*audit.Event, len(matched))
	for i, ev := range matched {
		out[i] = ev.Clone()
	}
	return out, nil
}

// Count implements audit.Storage.
func (m *MemoryStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	if q == nil {
		q = &audit.Query{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.filter(q))), nil
}

// Delete implements audit.Storage.
func (m *MemoryStorage) Delete(ctx context.Context, q *audit.Query) (int64, error) {
	if q == nil {
		q = &audit.Query{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[:0]
	var deleted int64
	for _, ev := range m.events {
		if matches(ev, q) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return deleted, nil
}

// Close implements audit.Storage.
func (m *MemoryStorage) Close() error {
	return nil
}

// filter must be called with mu held.
func (m *MemoryStorage) filter(q *audit.Query) []*audit.Event {
	var out []*audit.Event
	for _, ev := range m.events {
		if matches(ev, q) {
			out = append(out, ev)
		}
	}
	return out
}

func matches(ev *audit.Event, q *audit.Query) bool {
	if q.PolicyID != "" && ev.PolicyID != q.PolicyID {
		return false
	}
	if q.Kind != "" && ev.Kind != q.Kind {
		return false
	}
	if q.Since != nil && ev.Time.Before(*q.Since) {
		return false
	}
	if q.Until != nil && ev.Time.After(*q.Until) {
		return false
	}
	return true
}
