package trade

import (
	"errors"
	"time"

	"consensus-trader/internal/domain"
)

// ErrNoPosition is returned when a sell is requested for an entry that
// never recorded a buy.
var ErrNoPosition = errors.New("entry has no open position")

// SellSpecialist executes exits. It is stateless.
type SellSpecialist struct{}

// NewSellSpecialist creates a sell specialist.
func NewSellSpecialist() *SellSpecialist {
	return &SellSpecialist{}
}

// Execute closes the position at price for the given exit reason and
// returns the trade log with realized P&L. It fails when the entry has
// no recorded buy price or quantity.
func (s *SellSpecialist) Execute(entry *domain.PipelineEntry, reason string, price float64) (*domain.TradeLog, error) {
	if entry.BuyPrice <= 0 || entry.BuyQuantity <= 0 {
		return nil, ErrNoPosition
	}

	entry.CurrentPrice = price
	realized := (price - entry.BuyPrice) * float64(entry.BuyQuantity)

	return &domain.TradeLog{
		Symbol:      entry.Symbol,
		BuyPrice:    entry.BuyPrice,
		SellPrice:   price,
		Quantity:    entry.BuyQuantity,
		RealizedPnl: realized,
		ExitReason:  reason,
		ClosedAt:    time.Now().UTC(),
	}, nil
}
