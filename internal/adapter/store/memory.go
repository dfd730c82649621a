package store

import (
	"context"
	"sync"

	"github.com/berfenger/sib2mqtt/internal/core/domain"
)

type MemoryStore struct {
	mu      sync.Mutex
	entries []domain.ConfigurationEntry
	saves   int
}

func NewMemoryStore(entries ...domain.ConfigurationEntry) *MemoryStore {
	return &MemoryStore{entries: cloneEntries(entries)}
}

func (s *MemoryStore) Load(_ context.Context) ([]domain.ConfigurationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(s.entries), nil
}

func (s *MemoryStore) Save(_ context.Context, entries []domain.ConfigurationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = cloneEntries(entries)
	s.saves++
	return nil
}

// Saves counts completed Save calls.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneEntries(entries []domain.ConfigurationEntry) []domain.ConfigurationEntry {
	out := make([]domain.ConfigurationEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Clone())
	}
	return out
}
