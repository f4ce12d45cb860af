package actions

import (
	"context"
	"sync"
)

// MemoryStore is the in-process MetadataStore; state lasts for the life of
// the widget instance.
type MemoryStore struct {
	mu        sync.Mutex
	processed map[string]struct{}
	pending   *PendingNavigation
}

var _ MetadataStore = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{processed: map[string]struct{}{}}
}

func (s *MemoryStore) IsActionProcessed(ctx context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[messageID]
	return ok, nil
}

func (s *MemoryStore) MarkActionProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[messageID] = struct{}{}
	return nil
}

func (s *MemoryStore) SavePendingNavigation(ctx context.Context, nav PendingNavigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &nav
	return nil
}

func (s *MemoryStore) TakePendingNavigation(ctx context.Context) (*PendingNavigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nav := s.pending
	s.pending = nil
	return nav, nil
}

func (s *MemoryStore) Close() error { return nil }
