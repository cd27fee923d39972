package storage

import (
	"context"
	"time"

	"consensus-trader/internal/domain"
)

// EntryStore persists pipeline entries so tracked positions survive a
// process restart.
type EntryStore interface {
	// Upsert inserts or replaces the entry keyed by symbol.
	Upsert(ctx context.Context, e *domain.PipelineEntry) error

	// Get retrieves an entry by symbol. Returns ErrNotFound if not exists.
	Get(ctx context.Context, symbol string) (*domain.PipelineEntry, error)

	// List retrieves all entries, ordered by symbol ASC.
	List(ctx context.Context) ([]*domain.PipelineEntry, error)

	// Delete removes an entry. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, symbol string) error
}

// OrderStore provides access to the order journal.
type OrderStore interface {
	// Insert adds a new order. Returns ErrDuplicateKey if order_id or
	// idempotency_key exists.
	Insert(ctx context.Context, o *domain.Order) error

	// UpdateStatus records a status change. Returns ErrNotFound if the
	// order does not exist.
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, brokerOrderID string) error

	// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)

	// GetByIdempotencyKey retrieves the order submitted under the given
	// key. Returns ErrNotFound if not exists.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)

	// ListBySymbol retrieves all orders for a symbol, ordered by created_at ASC.
	ListBySymbol(ctx context.Context, symbol string) ([]*domain.Order, error)
}

// TradeStore provides access to the completed-trade journal.
type TradeStore interface {
	// Insert appends a completed round trip.
	Insert(ctx context.Context, t *domain.TradeLog) error

	// ListBySymbol retrieves all trades for a symbol, ordered by closed_at ASC.
	ListBySymbol(ctx context.Context, symbol string) ([]*domain.TradeLog, error)

	// ListSince retrieves all trades closed at or after since, ordered
	// by closed_at ASC.
	ListSince(ctx context.Context, since time.Time) ([]*domain.TradeLog, error)

	// TotalRealizedPnl sums realized PnL over all recorded trades.
	TotalRealizedPnl(ctx context.Context) (float64, error)
}

// ConsensusHistoryStore archives evaluation outcomes for offline
// analysis of persona performance.
type ConsensusHistoryStore interface {
	// Insert archives one evaluation result with all of its votes.
	Insert(ctx context.Context, r *domain.ConsensusResult) error

	// ListBySymbol retrieves the most recent results for a symbol,
	// ordered by evaluated_at DESC, at most limit rows.
	ListBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.ConsensusResult, error)
}
