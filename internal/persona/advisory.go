package persona

import (
	"context"
	"fmt"

	"consensus-trader/internal/domain"
)

// InnovationScout produces non-binding advisory opinions on growth and
// momentum signals. Its output is attached to the consensus record for
// later analysis but never counts toward the vote.
type InnovationScout struct{}

func NewInnovationScout() *InnovationScout { return &InnovationScout{} }

func (s *InnovationScout) Name() string { return "innovation_scout" }

// Evaluate scores the snapshot on a 0..1 innovation scale built from
// revenue growth, EPS growth, and trend strength.
func (s *InnovationScout) Evaluate(_ context.Context, snapshot *domain.MarketSnapshot) (domain.AdvisoryVote, error) {
	fund := snapshot.Fundamentals
	tech := snapshot.Technicals

	score := 0.0
	if fund.RevenueGrowth >= 0.20 {
		score += 0.4
	} else if fund.RevenueGrowth >= 0.10 {
		score += 0.2
	}
	if fund.EPSGrowthYoY >= 0.25 {
		score += 0.3
	} else if fund.EPSGrowthYoY >= 0.10 {
		score += 0.15
	}
	if tech.SMA60 > 0 && snapshot.Price > tech.SMA60 {
		score += 0.3
	}

	return domain.AdvisoryVote{
		PersonaName:     s.Name(),
		Action:          domain.ActionAdvisory,
		InnovationScore: score,
		Reasoning:       fmt.Sprintf("innovation score %.2f", score),
	}, nil
}
