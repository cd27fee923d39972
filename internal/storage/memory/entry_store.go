// Package memory provides in-memory store implementations for tests
// and paper trading.
package memory

import (
	"context"
	"sort"
	"sync"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/storage"
)

// EntryStore implements storage.EntryStore with an in-memory map.
type EntryStore struct {
	mu      sync.RWMutex
	entries map[string]*domain.PipelineEntry
}

// NewEntryStore creates a new EntryStore.
func NewEntryStore() *EntryStore {
	return &EntryStore{entries: make(map[string]*domain.PipelineEntry)}
}

// Compile-time interface check.
var _ storage.EntryStore = (*EntryStore)(nil)

// Upsert inserts or replaces the entry keyed by symbol.
func (s *EntryStore) Upsert(_ context.Context, e *domain.PipelineEntry) error {
	if e == nil || e.Symbol == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Symbol] = copyEntry(e)
	return nil
}

// Get retrieves an entry by symbol.
func (s *EntryStore) Get(_ context.Context, symbol string) (*domain.PipelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[symbol]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyEntry(e), nil
}

// List retrieves all entries, ordered by symbol ASC.
func (s *EntryStore) List(_ context.Context) ([]*domain.PipelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.PipelineEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Delete removes an entry.
func (s *EntryStore) Delete(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[symbol]; !ok {
		return storage.ErrNotFound
	}
	delete(s.entries, symbol)
	return nil
}

// copyEntry clones an entry so callers never share mutable state with
// the store.
func copyEntry(e *domain.PipelineEntry) *domain.PipelineEntry {
	out := *e
	out.History = append([]domain.TransitionRecord(nil), e.History...)
	if e.ConsensusResult != nil {
		r := *e.ConsensusResult
		r.Votes = append([]domain.Vote(nil), e.ConsensusResult.Votes...)
		if e.ConsensusResult.AdvisoryVote != nil {
			a := *e.ConsensusResult.AdvisoryVote
			r.AdvisoryVote = &a
		}
		out.ConsensusResult = &r
	}
	return &out
}
