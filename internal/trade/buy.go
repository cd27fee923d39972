// Package trade holds the entry/exit specialists and the position
// monitor that sit between consensus approval and order execution.
package trade

import (
	"errors"
	"math"
	"sync"

	"consensus-trader/internal/domain"
)

var (
	ErrMaxPositionsReached = errors.New("open position limit reached")
	ErrZeroQuantity        = errors.New("computed buy quantity is zero")
)

// BuySpecialist sizes entries and tracks the global open-position count.
type BuySpecialist struct {
	maxPositionPct float64
	maxPositions   int

	mu   sync.Mutex
	open int
}

// NewBuySpecialist creates a buy specialist.
func NewBuySpecialist(maxPositionPct float64, maxPositions int) *BuySpecialist {
	return &BuySpecialist{
		maxPositionPct: maxPositionPct,
		maxPositions:   maxPositions,
	}
}

// CalculateQuantity returns floor(availableCapital × maxPositionPct / price),
// 0 for a non-positive price.
func (s *BuySpecialist) CalculateQuantity(price, availableCapital float64) int64 {
	if price <= 0 {
		return 0
	}
	return int64(math.Floor(availableCapital * s.maxPositionPct / price))
}

// Reserve claims a position slot ahead of order submission, so a
// broker fill can never land without a slot to record it. Release the
// slot with ReleasePosition if the order does not go through.
func (s *BuySpecialist) Reserve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open >= s.maxPositions {
		return ErrMaxPositionsReached
	}
	s.open++
	return nil
}

// Commit writes the buy fields onto the entry for a slot already
// claimed with Reserve.
func (s *BuySpecialist) Commit(entry *domain.PipelineEntry, price float64, quantity int64) {
	entry.BuyPrice = price
	entry.BuyQuantity = quantity
	entry.CurrentPrice = price
}

// Execute sizes and records the entry. It fails without mutating the
// entry when the position limit is reached or the quantity computes to
// zero; otherwise it sets the buy fields and takes a position slot.
func (s *BuySpecialist) Execute(entry *domain.PipelineEntry, price, availableCapital float64) error {
	quantity := s.CalculateQuantity(price, availableCapital)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open >= s.maxPositions {
		return ErrMaxPositionsReached
	}
	if quantity <= 0 {
		return ErrZeroQuantity
	}

	entry.BuyPrice = price
	entry.BuyQuantity = quantity
	entry.CurrentPrice = price
	s.open++
	return nil
}

// ReleasePosition frees a position slot when a position closes. The
// counter never goes below zero.
func (s *BuySpecialist) ReleasePosition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open > 0 {
		s.open--
	}
}

// OpenPositions returns the current open-position count.
func (s *BuySpecialist) OpenPositions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}
