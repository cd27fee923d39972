package broker

import (
	"context"
	"sync"
	"time"

	"consensus-trader/internal/domain"
)

// DefaultQuoteMaxAge bounds how long a streamed tick may overlay the
// REST snapshot price before it is considered stale.
const DefaultQuoteMaxAge = 30 * time.Second

// StreamingMarketData overlays live streamed prices onto REST
// snapshots. Snapshots still come from the base MarketData; when a
// fresh tick for the symbol has been seen, its price supersedes the
// snapshot price. With no stream or no fresh tick it behaves exactly
// like the base.
type StreamingMarketData struct {
	base   MarketData
	maxAge time.Duration

	mu     sync.RWMutex
	latest map[string]Quote

	now func() time.Time
}

// NewStreamingMarketData wraps base. A non-positive maxAge falls back
// to DefaultQuoteMaxAge.
func NewStreamingMarketData(base MarketData, maxAge time.Duration) *StreamingMarketData {
	if maxAge <= 0 {
		maxAge = DefaultQuoteMaxAge
	}
	return &StreamingMarketData{
		base:   base,
		maxAge: maxAge,
		latest: make(map[string]Quote),
		now:    time.Now,
	}
}

// Consume drains the tick channel until it closes. Run it in its own
// goroutine alongside the stream.
func (m *StreamingMarketData) Consume(quotes <-chan Quote) {
	for quote := range quotes {
		m.Record(quote)
	}
}

// Record stores one tick as the latest for its symbol.
func (m *StreamingMarketData) Record(quote Quote) {
	if quote.Symbol == "" {
		return
	}
	if quote.At.IsZero() {
		quote.At = m.now().UTC()
	}
	m.mu.Lock()
	m.latest[quote.Symbol] = quote
	m.mu.Unlock()
}

// FetchSnapshot fetches from the base and overlays the streamed price
// when a tick newer than maxAge exists for the symbol.
func (m *StreamingMarketData) FetchSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	snap, err := m.base.FetchSnapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	quote, ok := m.latest[symbol]
	m.mu.RUnlock()
	if !ok || m.now().Sub(quote.At) > m.maxAge {
		return snap, nil
	}

	overlaid := *snap
	overlaid.Price = quote.Price.InexactFloat64()
	return &overlaid, nil
}

var _ MarketData = (*StreamingMarketData)(nil)
