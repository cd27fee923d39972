package memory

import (
	"context"
	"sort"
	"sync"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/storage"
)

// OrderStore implements storage.OrderStore with in-memory maps.
type OrderStore struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Order
	byKey  map[string]string // idempotency key -> order id
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		byID:  make(map[string]*domain.Order),
		byKey: make(map[string]string),
	}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

// Insert adds a new order. Returns ErrDuplicateKey if order_id or
// idempotency_key exists.
func (s *OrderStore) Insert(_ context.Context, o *domain.Order) error {
	if o == nil || o.OrderID == "" || o.IdempotencyKey == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[o.OrderID]; ok {
		return storage.ErrDuplicateKey
	}
	if _, ok := s.byKey[o.IdempotencyKey]; ok {
		return storage.ErrDuplicateKey
	}
	cp := *o
	s.byID[o.OrderID] = &cp
	s.byKey[o.IdempotencyKey] = o.OrderID
	return nil
}

// UpdateStatus records a status change.
func (s *OrderStore) UpdateStatus(_ context.Context, orderID string, status domain.OrderStatus, brokerOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.byID[orderID]
	if !ok {
		return storage.ErrNotFound
	}
	o.Status = status
	if brokerOrderID != "" {
		o.BrokerOrderID = brokerOrderID
	}
	return nil
}

// GetByID retrieves an order by its ID.
func (s *OrderStore) GetByID(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[orderID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// GetByIdempotencyKey retrieves the order submitted under the given key.
func (s *OrderStore) GetByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

// ListBySymbol retrieves all orders for a symbol, ordered by created_at ASC.
func (s *OrderStore) ListBySymbol(_ context.Context, symbol string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Order
	for _, o := range s.byID {
		if o.Symbol == symbol {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
