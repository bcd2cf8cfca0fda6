package memory

import (
	"context"
	"sync"

	"mystery-hunt-client/internal/domain"
)

// SnapshotStore is an in-memory implementation of app.SnapshotStore, keyed
// by owner scope and level id.
type SnapshotStore struct {
	mu     sync.RWMutex
	levels map[string]domain.Level
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		levels: make(map[string]domain.Level),
	}
}

func (s *SnapshotStore) SaveLevel(_ context.Context, scope string, level domain.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[scope+"/"+level.ID] = level.Clone()
	return nil
}

func (s *SnapshotStore) LoadLevel(_ context.Context, scope, levelID string) (domain.Level, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	level, ok := s.levels[scope+"/"+levelID]
	if !ok {
		return domain.Level{}, domain.ErrNoSnapshot
	}
	return level.Clone(), nil
}
