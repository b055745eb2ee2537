package match

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps records in process. It stores and hands out deep copies so
// callers can never alias the stored state.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int
	byID   map[int]*Record
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[int]*Record), now: time.Now}
}

func (m *MemoryStore) CreateMatch(ctx context.Context, name string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec := newRecord(m.nextID, name, m.now())
	m.byID[rec.ID] = rec.Clone()
	return rec, nil
}

func (m *MemoryStore) GetMatch(ctx context.Context, id int) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("match %d: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) UpdateMatch(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[rec.ID]
	if !ok {
		return fmt.Errorf("match %d: %w", rec.ID, ErrNotFound)
	}
	if cur.Version != rec.Version {
		return fmt.Errorf("match %d at version %d, have %d: %w", rec.ID, cur.Version, rec.Version, ErrConflict)
	}
	rec.Version++
	rec.UpdatedAt = m.now()
	m.byID[rec.ID] = rec.Clone()
	return nil
}
