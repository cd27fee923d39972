// Package stub provides an in-process broker and market data fake for
// tests and paper trading. Fills are immediate and deterministic.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"consensus-trader/internal/broker"
	"consensus-trader/internal/domain"
)

// Broker is a scriptable fake implementing broker.Client and
// broker.MarketData.
type Broker struct {
	mu sync.Mutex

	cash      decimal.Decimal
	snapshots map[string]*domain.MarketSnapshot
	orders    []broker.OrderInfo
	nextID    int

	// FailNextOrders makes the next N PlaceOrder calls return a
	// rejection response.
	FailNextOrders int
	// ErrNextOrders makes the next N PlaceOrder calls return a
	// transport error before reaching the "broker".
	ErrNextOrders int

	// PlaceOrderCalls counts broker submissions actually attempted.
	PlaceOrderCalls int
}

// New creates a stub broker with the given cash balance.
func New(cash float64) *Broker {
	return &Broker{
		cash:      decimal.NewFromFloat(cash),
		snapshots: make(map[string]*domain.MarketSnapshot),
	}
}

// SetSnapshot installs the snapshot returned for a symbol.
func (b *Broker) SetSnapshot(snapshot *domain.MarketSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots[snapshot.Symbol] = snapshot
}

// SetPrice adjusts only the price of an installed snapshot.
func (b *Broker) SetPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if snap, ok := b.snapshots[symbol]; ok {
		updated := *snap
		updated.Price = price
		updated.FetchedAt = time.Now().UTC()
		b.snapshots[symbol] = &updated
	}
}

// FetchSnapshot returns the installed snapshot for the symbol.
func (b *Broker) FetchSnapshot(_ context.Context, symbol string) (*domain.MarketSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, ok := b.snapshots[symbol]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s", symbol)
	}
	copied := *snap
	return &copied, nil
}

// PlaceOrder fills immediately at the requested (or snapshot) price.
func (b *Broker) PlaceOrder(_ context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ErrNextOrders > 0 {
		b.ErrNextOrders--
		return nil, fmt.Errorf("stub transport failure")
	}

	b.PlaceOrderCalls++

	if b.FailNextOrders > 0 {
		b.FailNextOrders--
		return &broker.OrderResponse{ResultCode: "1", Message: "rejected by stub"}, nil
	}

	price := req.Price
	if price.IsZero() {
		if snap, ok := b.snapshots[req.Symbol]; ok {
			price = decimal.NewFromFloat(snap.Price)
		}
	}

	b.nextID++
	id := fmt.Sprintf("STUB-%06d", b.nextID)
	b.orders = append(b.orders, broker.OrderInfo{
		BrokerOrderID: id,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		Price:         price,
		Status:        "FILLED",
		PlacedAt:      time.Now().UTC(),
	})

	notional := price.Mul(decimal.NewFromInt(req.Quantity))
	if req.Side == domain.SideBuy {
		b.cash = b.cash.Sub(notional)
	} else {
		b.cash = b.cash.Add(notional)
	}

	return &broker.OrderResponse{
		ResultCode:    broker.ResultCodeSuccess,
		Message:       "filled",
		BrokerOrderID: id,
		FilledQty:     req.Quantity,
		FilledPrice:   price,
	}, nil
}

// CancelOrder always succeeds for known ids.
func (b *Broker) CancelOrder(_ context.Context, brokerOrderID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.orders {
		if o.BrokerOrderID == brokerOrderID {
			return true, nil
		}
	}
	return false, nil
}

// GetOrders lists all orders placed so far.
func (b *Broker) GetOrders(_ context.Context) ([]broker.OrderInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.OrderInfo, len(b.orders))
	copy(out, b.orders)
	return out, nil
}

// GetCash returns the remaining cash balance.
func (b *Broker) GetCash(_ context.Context) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash, nil
}

var (
	_ broker.Client     = (*Broker)(nil)
	_ broker.MarketData = (*Broker)(nil)
)
