package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/storage"
)

func testOrder(id, key string) *domain.Order {
	return &domain.Order{
		OrderID:        id,
		IdempotencyKey: key,
		Symbol:         "AAPL",
		Side:           domain.SideBuy,
		Quantity:       10,
		Price:          decimal.RequireFromString("150.25"),
		Status:         domain.OrderCreated,
		MaxAttempts:    3,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestOrderStoreInsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	order := testOrder("ord-1", "key-1")
	require.NoError(t, store.Insert(ctx, order))

	got, err := store.GetByID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", got.IdempotencyKey)
	assert.True(t, got.Price.Equal(order.Price), "price mismatch: %s", got.Price)
	assert.Equal(t, domain.SideBuy, got.Side)

	byKey, err := store.GetByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", byKey.OrderID)
}

func TestOrderStoreDuplicateKeys(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	require.NoError(t, store.Insert(ctx, testOrder("ord-1", "key-1")))
	assert.ErrorIs(t, store.Insert(ctx, testOrder("ord-1", "key-2")), storage.ErrDuplicateKey)
	assert.ErrorIs(t, store.Insert(ctx, testOrder("ord-2", "key-1")), storage.ErrDuplicateKey)
}

func TestOrderStoreUpdateStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	require.NoError(t, store.Insert(ctx, testOrder("ord-1", "key-1")))
	require.NoError(t, store.UpdateStatus(ctx, "ord-1", domain.OrderFilled, "brk-42"))

	got, err := store.GetByID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, got.Status)
	assert.Equal(t, "brk-42", got.BrokerOrderID)

	// Empty broker id keeps the recorded one.
	require.NoError(t, store.UpdateStatus(ctx, "ord-1", domain.OrderCancelled, ""))
	got, err = store.GetByID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "brk-42", got.BrokerOrderID)

	assert.ErrorIs(t, store.UpdateStatus(ctx, "missing", domain.OrderFilled, ""), storage.ErrNotFound)
}

func TestOrderStoreListBySymbol(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	first := testOrder("ord-1", "key-1")
	second := testOrder("ord-2", "key-2")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	other := testOrder("ord-3", "key-3")
	other.Symbol = "MSFT"

	require.NoError(t, store.Insert(ctx, second))
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, other))

	orders, err := store.ListBySymbol(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ord-1", orders[0].OrderID)
	assert.Equal(t, "ord-2", orders[1].OrderID)
}
