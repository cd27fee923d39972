package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/storage"
)

// TradeStore implements storage.TradeStore with an in-memory slice.
type TradeStore struct {
	mu     sync.RWMutex
	trades []domain.TradeLog
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert appends a completed round trip.
func (s *TradeStore) Insert(_ context.Context, t *domain.TradeLog) error {
	if t == nil || t.Symbol == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, *t)
	return nil
}

// ListBySymbol retrieves all trades for a symbol, ordered by closed_at ASC.
func (s *TradeStore) ListBySymbol(_ context.Context, symbol string) ([]*domain.TradeLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TradeLog
	for i := range s.trades {
		if s.trades[i].Symbol == symbol {
			cp := s.trades[i]
			out = append(out, &cp)
		}
	}
	sortByClosedAt(out)
	return out, nil
}

// ListSince retrieves all trades closed at or after since.
func (s *TradeStore) ListSince(_ context.Context, since time.Time) ([]*domain.TradeLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TradeLog
	for i := range s.trades {
		if !s.trades[i].ClosedAt.Before(since) {
			cp := s.trades[i]
			out = append(out, &cp)
		}
	}
	sortByClosedAt(out)
	return out, nil
}

// TotalRealizedPnl sums realized PnL over all recorded trades.
func (s *TradeStore) TotalRealizedPnl(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for i := range s.trades {
		total += s.trades[i].RealizedPnl
	}
	return total, nil
}

func sortByClosedAt(trades []*domain.TradeLog) {
	sort.Slice(trades, func(i, j int) bool { return trades[i].ClosedAt.Before(trades[j].ClosedAt) })
}
