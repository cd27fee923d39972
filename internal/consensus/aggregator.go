// Package consensus fans an evaluation out to every persona and combines
// the binding votes into a pass/fail decision.
package consensus

import (
	"time"

	"consensus-trader/internal/domain"
)

// Default gate parameters.
const (
	DefaultQuorumPct            = 0.6
	DefaultBuyThreshold         = 7
	DefaultMinConviction        = 0.5
	DefaultMinCategoryDiversity = 2
)

// AggregatorConfig tunes the four consensus gates.
type AggregatorConfig struct {
	// QuorumPct is the minimum fraction of non-abstaining voters.
	QuorumPct float64
	// BuyThreshold is the minimum absolute BUY count.
	BuyThreshold int
	// MinConviction is the minimum mean conviction among BUY voters.
	MinConviction float64
	// MinCategoryDiversity is the minimum distinct categories among BUY voters.
	MinCategoryDiversity int
}

// DefaultAggregatorConfig returns the standard gates.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		QuorumPct:            DefaultQuorumPct,
		BuyThreshold:         DefaultBuyThreshold,
		MinConviction:        DefaultMinConviction,
		MinCategoryDiversity: DefaultMinCategoryDiversity,
	}
}

// Aggregator combines votes into a ConsensusResult.
type Aggregator struct {
	cfg AggregatorConfig
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Aggregate computes counts and gates over binding votes only. The
// advisory vote is attached verbatim and never influences the decision.
// PassesThreshold is the logical AND of quorum, threshold, conviction
// and diversity; zero votes fail with all counts at zero.
func (a *Aggregator) Aggregate(symbol string, votes []domain.Vote, advisory *domain.AdvisoryVote) *domain.ConsensusResult {
	result := &domain.ConsensusResult{
		Symbol:       symbol,
		Votes:        votes,
		AdvisoryVote: advisory,
		EvaluatedAt:  time.Now().UTC(),
	}

	var convictionSum float64
	categories := make(map[domain.PersonaCategory]struct{})
	for _, vote := range votes {
		switch vote.Action {
		case domain.ActionBuy:
			result.BuyCount++
			convictionSum += vote.Conviction
			categories[vote.Category] = struct{}{}
		case domain.ActionSell:
			result.SellCount++
		case domain.ActionHold:
			result.HoldCount++
		case domain.ActionAbstain:
			result.AbstainCount++
		}
	}

	if result.BuyCount > 0 {
		result.AvgConviction = convictionSum / float64(result.BuyCount)
	}
	result.CategoryDiversity = len(categories)

	total := len(votes)
	if total == 0 {
		return result
	}

	quorumOK := float64(total-result.AbstainCount)/float64(total) >= a.cfg.QuorumPct
	thresholdOK := result.BuyCount >= a.cfg.BuyThreshold
	convictionOK := result.AvgConviction >= a.cfg.MinConviction
	diversityOK := result.CategoryDiversity >= a.cfg.MinCategoryDiversity

	result.PassesThreshold = quorumOK && thresholdOK && convictionOK && diversityOK
	return result
}
