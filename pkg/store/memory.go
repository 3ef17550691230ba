package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBackend implements Backend using in-memory storage.
// All data is lost when the process exits.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Load implements Backend.
func (m *MemoryBackend) Load(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return NewStorageError("save", "", ErrInvalidRecord)
	}

	stored := rec.Clone()
	stored.UpdatedAt = m.now()

	m.mu.Lock()
	m.records[rec.ID] = stored
	m.mu.Unlock()

	rec.UpdatedAt = stored.UpdatedAt
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// List implements Backend.
func (m *MemoryBackend) List(ctx context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	return nil
}
