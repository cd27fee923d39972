// Package execution provides idempotent order submission with bounded
// retry. A given idempotency key reaches the broker at most once
// successfully, regardless of retries or concurrent callers.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"consensus-trader/internal/broker"
	"consensus-trader/internal/domain"
	"consensus-trader/internal/observability"
	"consensus-trader/internal/storage"
)

// DefaultMaxAttempts bounds ExecuteWithRetry when the order does not set
// its own limit.
const DefaultMaxAttempts = 3

// Result is the outcome of one submission attempt (or retry sequence).
type Result struct {
	Success        bool
	Duplicate      bool
	Message        string
	BrokerOrderID  string
	FilledQuantity int64
	FilledPrice    decimal.Decimal
}

// Executor owns the submitted-key set. The in-memory set is scoped to
// the executor's lifetime; with a journal attached, filled keys also
// survive restarts and the durable record backs the duplicate check.
type Executor struct {
	client  broker.Client
	journal storage.OrderStore

	mu        sync.Mutex
	submitted map[string]struct{}
	inflight  map[string]struct{}

	sleep func(time.Duration)
}

// Option configures Executor.
type Option func(*Executor)

// WithJournal persists every order through the store and consults it
// for idempotency-key duplicates before contacting the broker.
func WithJournal(store storage.OrderStore) Option {
	return func(e *Executor) {
		e.journal = store
	}
}

// NewExecutor creates an executor over the broker client.
func NewExecutor(client broker.Client, opts ...Option) *Executor {
	e := &Executor{
		client:    client,
		submitted: make(map[string]struct{}),
		inflight:  make(map[string]struct{}),
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Buy submits a buy order. An empty idempotencyKey gets a generated one.
func (e *Executor) Buy(ctx context.Context, symbol string, quantity int64, price decimal.Decimal, idempotencyKey string) Result {
	order := newOrder(symbol, domain.SideBuy, quantity, price, idempotencyKey)
	return e.submit(ctx, order)
}

// Sell submits a sell order. An empty idempotencyKey gets a generated one.
func (e *Executor) Sell(ctx context.Context, symbol string, quantity int64, price decimal.Decimal, idempotencyKey string) Result {
	order := newOrder(symbol, domain.SideSell, quantity, price, idempotencyKey)
	return e.submit(ctx, order)
}

// ExecuteWithRetry submits the order up to order.MaxAttempts times with
// exponential backoff (2^attempt seconds), reusing the same idempotency
// key on every attempt and stopping on the first success or duplicate.
func (e *Executor) ExecuteWithRetry(ctx context.Context, order *domain.Order) Result {
	if order.IdempotencyKey == "" {
		order.IdempotencyKey = uuid.NewString()
	}
	maxAttempts := order.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var result Result
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			observability.DefaultMetrics.OrderRetries.Inc()
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			e.sleep(backoff)
		}
		if ctx.Err() != nil {
			result.Message = ctx.Err().Error()
			return result
		}

		result = e.submit(ctx, order)
		if result.Success || result.Duplicate {
			return result
		}
	}
	return result
}

// submit is the single submission path. The duplicate check never
// contacts the broker; the key is marked submitted only after the broker
// accepts the order.
func (e *Executor) submit(ctx context.Context, order *domain.Order) Result {
	key := order.IdempotencyKey

	e.mu.Lock()
	if _, done := e.submitted[key]; done {
		e.mu.Unlock()
		order.Status = domain.OrderRejected
		observability.DefaultMetrics.DuplicateOrders.Inc()
		return Result{Duplicate: true, Message: fmt.Sprintf("duplicate order: key %s already submitted", key)}
	}
	if _, busy := e.inflight[key]; busy {
		e.mu.Unlock()
		observability.DefaultMetrics.DuplicateOrders.Inc()
		return Result{Duplicate: true, Message: fmt.Sprintf("duplicate order: key %s submission in flight", key)}
	}
	e.inflight[key] = struct{}{}
	e.mu.Unlock()

	if e.journal != nil {
		if prior, err := e.journal.GetByIdempotencyKey(ctx, key); err == nil && prior.Status == domain.OrderFilled {
			e.mu.Lock()
			e.submitted[key] = struct{}{}
			delete(e.inflight, key)
			e.mu.Unlock()
			order.Status = domain.OrderRejected
			observability.DefaultMetrics.DuplicateOrders.Inc()
			return Result{Duplicate: true, Message: fmt.Sprintf("duplicate order: key %s already filled in journal", key)}
		}
	}

	order.Status = domain.OrderValidating
	order.SubmissionAttempts++
	e.record(ctx, order)

	resp, err := e.client.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    order.Price,
	})

	e.mu.Lock()
	delete(e.inflight, key)
	if err == nil && resp.Accepted() {
		e.submitted[key] = struct{}{}
	}
	e.mu.Unlock()

	if err != nil {
		order.Status = domain.OrderRejected
		e.updateJournal(ctx, order)
		return Result{Message: fmt.Sprintf("broker call failed: %v", err)}
	}
	if !resp.Accepted() {
		order.Status = domain.OrderRejected
		e.updateJournal(ctx, order)
		return Result{Message: fmt.Sprintf("broker rejected order: rt_cd=%s %s", resp.ResultCode, resp.Message)}
	}

	// Fire-and-forget market/limit orders are assumed filled on accept.
	order.Status = domain.OrderFilled
	order.BrokerOrderID = resp.BrokerOrderID
	e.updateJournal(ctx, order)
	return Result{
		Success:        true,
		Message:        resp.Message,
		BrokerOrderID:  resp.BrokerOrderID,
		FilledQuantity: resp.FilledQty,
		FilledPrice:    resp.FilledPrice,
	}
}

// record inserts the order into the journal once per idempotency key.
// A key collision means an earlier attempt already owns a row; the
// order adopts that row's id so status updates land on it.
func (e *Executor) record(ctx context.Context, order *domain.Order) {
	if e.journal == nil {
		return
	}
	err := e.journal.Insert(ctx, order)
	if err == nil {
		return
	}
	if errors.Is(err, storage.ErrDuplicateKey) {
		if prior, gerr := e.journal.GetByIdempotencyKey(ctx, order.IdempotencyKey); gerr == nil {
			order.OrderID = prior.OrderID
		}
		return
	}
	log.Printf("[executor] journal insert %s: %v", order.OrderID, err)
}

// updateJournal records the order's final status, best effort.
func (e *Executor) updateJournal(ctx context.Context, order *domain.Order) {
	if e.journal == nil {
		return
	}
	if err := e.journal.UpdateStatus(ctx, order.OrderID, order.Status, order.BrokerOrderID); err != nil {
		log.Printf("[executor] journal update %s: %v", order.OrderID, err)
	}
}

// WasSubmitted reports whether the key has a successful submission.
func (e *Executor) WasSubmitted(idempotencyKey string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.submitted[idempotencyKey]
	return ok
}

func newOrder(symbol string, side domain.OrderSide, quantity int64, price decimal.Decimal, idempotencyKey string) *domain.Order {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	return &domain.Order{
		OrderID:        uuid.NewString(),
		IdempotencyKey: idempotencyKey,
		Symbol:         symbol,
		Side:           side,
		Quantity:       quantity,
		Price:          price,
		Status:         domain.OrderCreated,
		MaxAttempts:    DefaultMaxAttempts,
		CreatedAt:      time.Now().UTC(),
	}
}
