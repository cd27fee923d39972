package consensus

import (
	"context"
	"fmt"
	"log"
	"time"

	"consensus-trader/internal/broker"
	"consensus-trader/internal/domain"
)

// Default fan-out parameters.
const (
	DefaultWorkers     = 5
	DefaultVoteTimeout = 60 * time.Second
)

// Voter is the capability a binding persona exposes.
type Voter interface {
	Name() string
	Category() domain.PersonaCategory
	Evaluate(ctx context.Context, snapshot *domain.MarketSnapshot) (domain.Vote, error)
}

// Advisor is the capability of the optional non-binding persona.
type Advisor interface {
	Name() string
	Evaluate(ctx context.Context, snapshot *domain.MarketSnapshot) (domain.AdvisoryVote, error)
}

// EvaluatorConfig tunes the fan-out.
type EvaluatorConfig struct {
	Workers     int
	VoteTimeout time.Duration
}

// DefaultEvaluatorConfig returns the standard fan-out parameters.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{Workers: DefaultWorkers, VoteTimeout: DefaultVoteTimeout}
}

// Evaluator fetches a snapshot and fans it out to every voter plus the
// optional advisor over a bounded worker pool. A voter that fails or
// times out degrades to ABSTAIN; an advisor failure is dropped entirely.
type Evaluator struct {
	market     broker.MarketData
	voters     []Voter
	advisor    Advisor // may be nil
	aggregator *Aggregator
	cfg        EvaluatorConfig
}

// NewEvaluator creates an evaluator. advisor may be nil.
func NewEvaluator(market broker.MarketData, voters []Voter, advisor Advisor, aggregator *Aggregator, cfg EvaluatorConfig) *Evaluator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.VoteTimeout <= 0 {
		cfg.VoteTimeout = DefaultVoteTimeout
	}
	return &Evaluator{
		market:     market,
		voters:     voters,
		advisor:    advisor,
		aggregator: aggregator,
		cfg:        cfg,
	}
}

// Evaluate runs one full consensus round for the symbol. It fails only
// when the market snapshot itself cannot be fetched.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string) (*domain.ConsensusResult, error) {
	snapshot, err := e.market.FetchSnapshot(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot %s: %w", symbol, err)
	}

	votes := make([]domain.Vote, len(e.voters))
	advisoryCh := make(chan *domain.AdvisoryVote, 1)

	sem := make(chan struct{}, e.cfg.Workers)
	done := make(chan int, len(e.voters))

	for i, voter := range e.voters {
		sem <- struct{}{}
		go func(i int, voter Voter) {
			defer func() { <-sem; done <- i }()
			votes[i] = e.runVoter(ctx, voter, snapshot)
		}(i, voter)
	}

	if e.advisor != nil {
		go func() {
			advisoryCh <- e.runAdvisor(ctx, snapshot)
		}()
	} else {
		advisoryCh <- nil
	}

	for range e.voters {
		<-done
	}
	advisory := <-advisoryCh

	return e.aggregator.Aggregate(symbol, votes, advisory), nil
}

// runVoter executes one voter with the per-call timeout. On timeout the
// result is discarded, not interrupted; the synthesized ABSTAIN carries
// the failure reason.
func (e *Evaluator) runVoter(ctx context.Context, voter Voter, snapshot *domain.MarketSnapshot) domain.Vote {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.VoteTimeout)
	defer cancel()

	type outcome struct {
		vote domain.Vote
		err  error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- outcome{err: fmt.Errorf("voter panicked: %v", r)}
			}
		}()
		vote, err := voter.Evaluate(callCtx, snapshot)
		resultCh <- outcome{vote: vote, err: err}
	}()

	select {
	case <-callCtx.Done():
		return domain.AbstainVote(voter.Name(), voter.Category(),
			fmt.Sprintf("evaluation timed out after %s", e.cfg.VoteTimeout))
	case res := <-resultCh:
		if res.err != nil {
			return domain.AbstainVote(voter.Name(), voter.Category(),
				fmt.Sprintf("evaluation failed: %v", res.err))
		}
		return res.vote
	}
}

// runAdvisor executes the non-binding advisor; any failure is swallowed.
func (e *Evaluator) runAdvisor(ctx context.Context, snapshot *domain.MarketSnapshot) *domain.AdvisoryVote {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.VoteTimeout)
	defer cancel()

	resultCh := make(chan *domain.AdvisoryVote, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[consensus] advisor %s panicked: %v", e.advisor.Name(), r)
				resultCh <- nil
			}
		}()
		vote, err := e.advisor.Evaluate(callCtx, snapshot)
		if err != nil {
			log.Printf("[consensus] advisor %s failed: %v", e.advisor.Name(), err)
			resultCh <- nil
			return
		}
		resultCh <- &vote
	}()

	select {
	case <-callCtx.Done():
		log.Printf("[consensus] advisor %s timed out", e.advisor.Name())
		return nil
	case vote := <-resultCh:
		return vote
	}
}
