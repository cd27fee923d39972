package domain

import "time"

// Fundamentals carries the valuation figures personas inspect.
type Fundamentals struct {
	PER           float64 // price-to-earnings ratio
	PBR           float64 // price-to-book ratio
	ROE           float64 // return on equity, fraction
	DebtRatio     float64 // total debt / equity, fraction
	DividendYield float64 // fraction
	EPSGrowthYoY  float64 // fraction
	RevenueGrowth float64 // fraction
}

// Technicals carries precomputed indicator values. The pipeline only
// consumes these; indicator math lives with the market data collaborator.
type Technicals struct {
	RSI14        float64
	MACD         float64
	MACDSignal   float64
	SMA20        float64
	SMA60        float64
	Volume       int64
	AvgVolume20d int64
	High52w      float64
	Low52w       float64
}

// MarketSnapshot is an immutable view of one symbol at one instant.
// Concurrent persona reads require no synchronization.
type MarketSnapshot struct {
	Symbol       string
	Price        float64
	Fundamentals Fundamentals
	Technicals   Technicals
	FetchedAt    time.Time
}
