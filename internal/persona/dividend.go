package persona

import (
	"context"

	"consensus-trader/internal/domain"
)

// DividendVoter screens for sustainable income at reasonable valuations.
type DividendVoter struct {
	MinYield     float64
	MaxDebtRatio float64
	MaxPBR       float64
}

// NewDividendVoter creates a dividend persona with standard thresholds.
func NewDividendVoter() *DividendVoter {
	return &DividendVoter{
		MinYield:     0.03,
		MaxDebtRatio: 1.5,
		MaxPBR:       2.0,
	}
}

func (v *DividendVoter) Name() string                     { return "dividend" }
func (v *DividendVoter) Category() domain.PersonaCategory { return domain.CategoryDividend }

func (v *DividendVoter) Evaluate(_ context.Context, snapshot *domain.MarketSnapshot) (domain.Vote, error) {
	fund := snapshot.Fundamentals
	criteria := map[string]bool{
		"yield_attractive": fund.DividendYield >= v.MinYield,
		"debt_manageable":  fund.DebtRatio > 0 && fund.DebtRatio < v.MaxDebtRatio,
		"book_value_fair":  fund.PBR > 0 && fund.PBR < v.MaxPBR,
	}
	return criteriaVote(v.Name(), v.Category(), criteria, 3), nil
}
