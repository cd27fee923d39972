package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/storage"
)

// OrderStore implements storage.OrderStore using PostgreSQL. Prices are
// stored as NUMERIC and scanned through decimal to avoid float drift.
type OrderStore struct {
	pool *Pool
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

const orderColumns = `
	order_id, idempotency_key, symbol, side, quantity, price,
	status, broker_order_id, submission_attempts, max_attempts, created_at
`

// Insert adds a new order. Returns ErrDuplicateKey if order_id or
// idempotency_key exists.
func (s *OrderStore) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.OrderID == "" || o.IdempotencyKey == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		o.OrderID,
		o.IdempotencyKey,
		o.Symbol,
		string(o.Side),
		o.Quantity,
		o.Price.String(),
		string(o.Status),
		o.BrokerOrderID,
		o.SubmissionAttempts,
		o.MaxAttempts,
		o.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateStatus records a status change. Returns ErrNotFound if the order
// does not exist.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, brokerOrderID string) error {
	query := `
		UPDATE orders
		SET status = $2,
		    broker_order_id = CASE WHEN $3 = '' THEN broker_order_id ELSE $3 END
		WHERE order_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, orderID, string(status), brokerOrderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
func (s *OrderStore) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return o, nil
}

// GetByIdempotencyKey retrieves the order submitted under the given key.
func (s *OrderStore) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, key))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get order by idempotency key: %w", err)
	}
	return o, nil
}

// ListBySymbol retrieves all orders for a symbol, ordered by created_at ASC.
func (s *OrderStore) ListBySymbol(ctx context.Context, symbol string) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE symbol = $1
		ORDER BY created_at ASC, order_id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o      domain.Order
		side   string
		price  string
		status string
	)
	err := row.Scan(
		&o.OrderID,
		&o.IdempotencyKey,
		&o.Symbol,
		&side,
		&o.Quantity,
		&price,
		&status,
		&o.BrokerOrderID,
		&o.SubmissionAttempts,
		&o.MaxAttempts,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	o.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	return &o, nil
}
