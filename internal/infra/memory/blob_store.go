package memory

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"mystery-hunt-client/internal/domain"
)

// BlobStore keeps fetched assets in process. With a positive bound it evicts
// the least recently used entry; otherwise it grows without limit.
type BlobStore struct {
	bounded *lru.Cache[string, domain.Blob]

	mu    sync.RWMutex
	blobs map[string]domain.Blob
}

// NewBlobStore creates a store holding at most maxEntries blobs (0 = unbounded).
func NewBlobStore(maxEntries int) (*BlobStore, error) {
	if maxEntries <= 0 {
		return &BlobStore{blobs: make(map[string]domain.Blob)}, nil
	}
	cache, err := lru.New[string, domain.Blob](maxEntries)
	if err != nil {
		return nil, err
	}
	return &BlobStore{bounded: cache}, nil
}

func (s *BlobStore) Get(_ context.Context, key string) (domain.Blob, bool) {
	if s.bounded != nil {
		return s.bounded.Get(key)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	return blob, ok
}

func (s *BlobStore) Put(_ context.Context, key string, blob domain.Blob) {
	if s.bounded != nil {
		s.bounded.Add(key, blob)
		return
	}
	s.mu.Lock()
	s.blobs[key] = blob
	s.mu.Unlock()
}

// Len returns the number of stored blobs.
func (s *BlobStore) Len() int {
	if s.bounded != nil {
		return s.bounded.Len()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
