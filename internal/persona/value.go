package persona

import (
	"context"

	"consensus-trader/internal/domain"
)

// ValueVoter buys quality businesses at low multiples.
type ValueVoter struct {
	MaxPER       float64
	MaxPBR       float64
	MinROE       float64
	MaxDebtRatio float64
}

// NewValueVoter creates a value persona with standard thresholds.
func NewValueVoter() *ValueVoter {
	return &ValueVoter{
		MaxPER:       15,
		MaxPBR:       1.5,
		MinROE:       0.10,
		MaxDebtRatio: 1.0,
	}
}

func (v *ValueVoter) Name() string                     { return "value" }
func (v *ValueVoter) Category() domain.PersonaCategory { return domain.CategoryValue }

// Evaluate votes BUY when at least three of the four value criteria hold.
func (v *ValueVoter) Evaluate(_ context.Context, snapshot *domain.MarketSnapshot) (domain.Vote, error) {
	f := snapshot.Fundamentals
	criteria := map[string]bool{
		"per_low":       f.PER > 0 && f.PER < v.MaxPER,
		"pbr_low":       f.PBR > 0 && f.PBR < v.MaxPBR,
		"roe_high":      f.ROE >= v.MinROE,
		"debt_moderate": f.DebtRatio < v.MaxDebtRatio,
	}
	return criteriaVote(v.Name(), v.Category(), criteria, 3), nil
}
