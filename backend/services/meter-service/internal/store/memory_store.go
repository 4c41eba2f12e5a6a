package store

import (
	"context"
	"sync"

	"meterflow/backend/services/meter-service/internal/models"
)

// MemoryStore keeps the snapshot in process.
type MemoryStore struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the current snapshot.
func (s *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, ErrEmpty
	}
	cp := *s.snap
	cp.Records = append([]models.MergedRecord(nil), s.snap.Records...)
	return &cp, nil
}

// Replace swaps in a new snapshot.
func (s *MemoryStore) Replace(_ context.Context, snap Snapshot) error {
	snap.Records = append([]models.MergedRecord(nil), snap.Records...)
	s.mu.Lock()
	s.snap = &snap
	s.mu.Unlock()
	return nil
}

// Clear drops the snapshot.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
	return nil
}
