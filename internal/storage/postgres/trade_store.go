package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert appends a completed round trip.
func (s *TradeStore) Insert(ctx context.Context, t *domain.TradeLog) error {
	if t == nil || t.Symbol == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_log (
			symbol, buy_price, sell_price, quantity, realized_pnl, exit_reason, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		t.Symbol,
		t.BuyPrice,
		t.SellPrice,
		t.Quantity,
		t.RealizedPnl,
		t.ExitReason,
		t.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListBySymbol retrieves all trades for a symbol, ordered by closed_at ASC.
func (s *TradeStore) ListBySymbol(ctx context.Context, symbol string) ([]*domain.TradeLog, error) {
	query := `
		SELECT symbol, buy_price, sell_price, quantity, realized_pnl, exit_reason, closed_at
		FROM trade_log
		WHERE symbol = $1
		ORDER BY closed_at ASC
	`
	return s.queryTrades(ctx, query, symbol)
}

// ListSince retrieves all trades closed at or after since.
func (s *TradeStore) ListSince(ctx context.Context, since time.Time) ([]*domain.TradeLog, error) {
	query := `
		SELECT symbol, buy_price, sell_price, quantity, realized_pnl, exit_reason, closed_at
		FROM trade_log
		WHERE closed_at >= $1
		ORDER BY closed_at ASC
	`
	return s.queryTrades(ctx, query, since)
}

// TotalRealizedPnl sums realized PnL over all recorded trades.
func (s *TradeStore) TotalRealizedPnl(ctx context.Context) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(realized_pnl), 0) FROM trade_log`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum realized pnl: %w", err)
	}
	return total, nil
}

func (s *TradeStore) queryTrades(ctx context.Context, query string, args ...any) ([]*domain.TradeLog, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []*domain.TradeLog
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}

func scanTrade(row pgx.Row) (*domain.TradeLog, error) {
	var t domain.TradeLog
	err := row.Scan(
		&t.Symbol,
		&t.BuyPrice,
		&t.SellPrice,
		&t.Quantity,
		&t.RealizedPnl,
		&t.ExitReason,
		&t.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
