package domain

import "time"

// ConsensusResult is the outcome of one evaluator run over all binding
// personas. Immutable once produced; recomputed fresh on every evaluation.
type ConsensusResult struct {
	Symbol       string
	Votes        []Vote
	AdvisoryVote *AdvisoryVote

	BuyCount     int
	SellCount    int
	HoldCount    int
	AbstainCount int

	PassesThreshold   bool
	AvgConviction     float64 // mean conviction among BUY voters
	CategoryDiversity int     // distinct categories among BUY voters

	EvaluatedAt time.Time
}

// TotalVotes returns the number of binding votes cast.
func (r *ConsensusResult) TotalVotes() int {
	return len(r.Votes)
}
