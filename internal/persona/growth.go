package persona

import (
	"context"

	"consensus-trader/internal/domain"
)

// GrowthVoter buys accelerating earners in uptrends.
type GrowthVoter struct {
	MinEPSGrowth     float64
	MinRevenueGrowth float64
	MinROE           float64
}

// NewGrowthVoter creates a growth persona with standard thresholds.
func NewGrowthVoter() *GrowthVoter {
	return &GrowthVoter{
		MinEPSGrowth:     0.15,
		MinRevenueGrowth: 0.10,
		MinROE:           0.08,
	}
}

func (v *GrowthVoter) Name() string                     { return "growth" }
func (v *GrowthVoter) Category() domain.PersonaCategory { return domain.CategoryGrowth }

// Evaluate votes BUY when at least three of the four growth criteria hold.
func (v *GrowthVoter) Evaluate(_ context.Context, snapshot *domain.MarketSnapshot) (domain.Vote, error) {
	f := snapshot.Fundamentals
	tech := snapshot.Technicals
	criteria := map[string]bool{
		"eps_accelerating":     f.EPSGrowthYoY >= v.MinEPSGrowth,
		"revenue_accelerating": f.RevenueGrowth >= v.MinRevenueGrowth,
		"roe_positive":         f.ROE >= v.MinROE,
		"uptrend":              tech.SMA60 > 0 && snapshot.Price > tech.SMA60,
	}
	return criteriaVote(v.Name(), v.Category(), criteria, 3), nil
}
