package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus is the submission lifecycle of an order.
type OrderStatus string

const (
	OrderCreated     OrderStatus = "CREATED"
	OrderValidating  OrderStatus = "VALIDATING"
	OrderSubmitted   OrderStatus = "SUBMITTED"
	OrderPartialFill OrderStatus = "PARTIAL_FILL"
	OrderFilled      OrderStatus = "FILLED"
	OrderRejected    OrderStatus = "REJECTED"
	OrderCancelled   OrderStatus = "CANCELLED"
	OrderExpired     OrderStatus = "EXPIRED"
)

// Order is one order intent tracked by the executor. A given
// IdempotencyKey is submitted to the broker at most once across retries.
type Order struct {
	OrderID        string
	IdempotencyKey string
	Symbol         string
	Side           OrderSide
	Quantity       int64
	Price          decimal.Decimal // zero for market orders
	Status         OrderStatus
	BrokerOrderID  string

	SubmissionAttempts int
	MaxAttempts        int

	CreatedAt time.Time
}

// TradeLog records one completed round trip for the journal.
type TradeLog struct {
	Symbol      string
	BuyPrice    float64
	SellPrice   float64
	Quantity    int64
	RealizedPnl float64
	ExitReason  string
	ClosedAt    time.Time
}

// Exit reason codes, checked by the position monitor in this fixed order.
const (
	ExitReasonStopLoss     = "STOP_LOSS"
	ExitReasonTakeProfit   = "TAKE_PROFIT"
	ExitReasonTrailingStop = "TRAILING_STOP"
	ExitReasonMaxHolding   = "MAX_HOLDING"
)
