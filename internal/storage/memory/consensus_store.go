package memory

import (
	"context"
	"sort"
	"sync"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/storage"
)

// ConsensusHistoryStore implements storage.ConsensusHistoryStore with an
// in-memory slice. Used in paper mode where no ClickHouse is configured.
type ConsensusHistoryStore struct {
	mu      sync.RWMutex
	results []domain.ConsensusResult
}

// NewConsensusHistoryStore creates a new ConsensusHistoryStore.
func NewConsensusHistoryStore() *ConsensusHistoryStore {
	return &ConsensusHistoryStore{}
}

// Compile-time interface check.
var _ storage.ConsensusHistoryStore = (*ConsensusHistoryStore)(nil)

// Insert archives one evaluation result.
func (s *ConsensusHistoryStore) Insert(_ context.Context, r *domain.ConsensusResult) error {
	if r == nil || r.Symbol == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	cp.Votes = append([]domain.Vote(nil), r.Votes...)
	if r.AdvisoryVote != nil {
		a := *r.AdvisoryVote
		cp.AdvisoryVote = &a
	}
	s.results = append(s.results, cp)
	return nil
}

// ListBySymbol retrieves the most recent results for a symbol, ordered
// by evaluated_at DESC, at most limit rows.
func (s *ConsensusHistoryStore) ListBySymbol(_ context.Context, symbol string, limit int) ([]*domain.ConsensusResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ConsensusResult
	for i := range s.results {
		if s.results[i].Symbol == symbol {
			cp := s.results[i]
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EvaluatedAt.After(out[j].EvaluatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
