// Package broker defines the narrow contracts to the brokerage and
// market data services, with a REST implementation, a streaming quote
// client and an in-process stub for tests and paper trading.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"consensus-trader/internal/domain"
)

// Result code returned by the broker for an accepted order.
const ResultCodeSuccess = "0"

// OrderRequest is the outbound order payload.
type OrderRequest struct {
	Symbol   string          `json:"symbol"`
	Side     domain.OrderSide `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"` // zero means market order
}

// OrderResponse is the broker's answer, treated as opaque success or
// failure plus a result code and message.
type OrderResponse struct {
	ResultCode    string          `json:"rt_cd"`
	Message       string          `json:"msg1"`
	BrokerOrderID string          `json:"odno"`
	FilledQty     int64           `json:"filled_qty"`
	FilledPrice   decimal.Decimal `json:"filled_price"`
}

// Accepted reports whether the broker accepted the order.
func (r *OrderResponse) Accepted() bool {
	return r != nil && r.ResultCode == ResultCodeSuccess
}

// OrderInfo describes an order as the broker sees it.
type OrderInfo struct {
	BrokerOrderID string          `json:"odno"`
	Symbol        string          `json:"symbol"`
	Side          domain.OrderSide `json:"side"`
	Quantity      int64           `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Status        string          `json:"status"`
	PlacedAt      time.Time       `json:"placed_at"`
}

// Client is the brokerage contract the executor depends on.
type Client interface {
	// PlaceOrder submits an order and returns the broker response.
	// A transport failure returns an error; a rejection returns a
	// response whose Accepted() is false.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)

	// CancelOrder cancels an open order by broker order id.
	CancelOrder(ctx context.Context, brokerOrderID string) (bool, error)

	// GetOrders lists open orders.
	GetOrders(ctx context.Context) ([]OrderInfo, error)

	// GetCash returns the available trading cash.
	GetCash(ctx context.Context) (decimal.Decimal, error)
}

// MarketData fetches immutable snapshots for evaluation. The pipeline
// only consumes snapshots; indicator math lives behind this contract.
type MarketData interface {
	FetchSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error)
}
