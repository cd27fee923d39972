package domain

// RiskLimits is immutable risk configuration shared by the risk manager
// and the specialists.
type RiskLimits struct {
	MaxPositionPct       float64 // max single position as fraction of portfolio
	MaxPortfolioExposure float64 // max total exposure as fraction of portfolio
	MaxPositions         int     // max concurrent open positions

	MinStopLossPct     float64
	MaxStopLossPct     float64
	DefaultStopLossPct float64

	MinTakeProfitPct     float64
	DefaultTakeProfitPct float64
}

// DefaultRiskLimits returns the standard limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionPct:       0.10,
		MaxPortfolioExposure: 0.80,
		MaxPositions:         10,
		MinStopLossPct:       0.02,
		MaxStopLossPct:       0.15,
		DefaultStopLossPct:   0.07,
		MinTakeProfitPct:     0.05,
		DefaultTakeProfitPct: 0.20,
	}
}
