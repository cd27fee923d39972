package pipeline

import (
	"context"
	"fmt"

	"consensus-trader/internal/domain"
)

// LiquidityScreener is the default screening gate: it rejects symbols
// that are too cheap or too thinly traded to evaluate.
type LiquidityScreener struct {
	MinPrice     float64
	MinAvgVolume int64
}

// NewLiquidityScreener creates a screener with standard floors.
func NewLiquidityScreener() *LiquidityScreener {
	return &LiquidityScreener{
		MinPrice:     5,
		MinAvgVolume: 100_000,
	}
}

// Compile-time interface check.
var _ Screener = (*LiquidityScreener)(nil)

func (s *LiquidityScreener) Screen(_ context.Context, snapshot *domain.MarketSnapshot) (bool, string, error) {
	if snapshot.Price < s.MinPrice {
		return false, fmt.Sprintf("price %.2f below floor %.2f", snapshot.Price, s.MinPrice), nil
	}
	if snapshot.Technicals.AvgVolume20d < s.MinAvgVolume {
		return false, fmt.Sprintf("avg volume %d below floor %d", snapshot.Technicals.AvgVolume20d, s.MinAvgVolume), nil
	}
	return true, "liquidity floors met", nil
}
