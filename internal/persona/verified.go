package persona

import (
	"context"
	"log"
	"sync"
	"time"

	"consensus-trader/internal/breaker"
	"consensus-trader/internal/domain"
)

// Verifier is a secondary opinion source consulted to confirm or
// overturn a rule-based vote. Implementations are typically remote and
// fallible.
type Verifier interface {
	Verify(ctx context.Context, snapshot *domain.MarketSnapshot, rule domain.Vote) (domain.Vote, error)
}

// DefaultDailyVerifyBudget caps verifier invocations per calendar day.
const DefaultDailyVerifyBudget = 50

// RuleVoter is the deterministic stage of a VerifiedVoter.
type RuleVoter interface {
	Name() string
	Category() domain.PersonaCategory
	Evaluate(ctx context.Context, snapshot *domain.MarketSnapshot) (domain.Vote, error)
}

// VerifiedVoter runs a deterministic rule vote first and, when the rule
// says BUY, consults a secondary verifier guarded by a circuit breaker
// and a daily invocation budget. The verifier can only refine the
// outcome; any failure on the secondary path falls back to the rule
// vote unchanged.
type VerifiedVoter struct {
	rule     RuleVoter
	verifier Verifier
	breaker  *breaker.Breaker

	mu          sync.Mutex
	budget      int
	usedToday   int
	currentDate string

	now func() time.Time
}

// NewVerifiedVoter wraps rule with a breaker-guarded verifier. A budget
// of zero or less falls back to DefaultDailyVerifyBudget.
func NewVerifiedVoter(rule RuleVoter, verifier Verifier, brk *breaker.Breaker, budget int) *VerifiedVoter {
	if budget <= 0 {
		budget = DefaultDailyVerifyBudget
	}
	return &VerifiedVoter{
		rule:     rule,
		verifier: verifier,
		breaker:  brk,
		budget:   budget,
		now:      time.Now,
	}
}

func (v *VerifiedVoter) Name() string                     { return v.rule.Name() }
func (v *VerifiedVoter) Category() domain.PersonaCategory { return v.rule.Category() }

// Evaluate returns the rule vote, refined by the verifier when the
// secondary path is available.
func (v *VerifiedVoter) Evaluate(ctx context.Context, snapshot *domain.MarketSnapshot) (domain.Vote, error) {
	ruleVote, err := v.rule.Evaluate(ctx, snapshot)
	if err != nil {
		return domain.Vote{}, err
	}

	if ruleVote.Action != domain.ActionBuy {
		return ruleVote, nil
	}
	if !v.breaker.AllowRequest() {
		return ruleVote, nil
	}
	if !v.consumeBudget() {
		return ruleVote, nil
	}

	secondary, err := v.verifier.Verify(ctx, snapshot, ruleVote)
	if err != nil {
		log.Printf("[persona] %s: verifier failed for %s: %v", v.Name(), snapshot.Symbol, err)
		v.breaker.RecordFailure()
		return ruleVote, nil
	}
	v.breaker.RecordSuccess()

	return mergeVerdicts(ruleVote, secondary), nil
}

// consumeBudget takes one invocation slot, resetting the counter on a
// calendar-date rollover.
func (v *VerifiedVoter) consumeBudget() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	today := v.now().Format("2006-01-02")
	if today != v.currentDate {
		v.currentDate = today
		v.usedToday = 0
	}
	if v.usedToday >= v.budget {
		return false
	}
	v.usedToday++
	return true
}

// mergeVerdicts combines the rule vote with a successful secondary
// opinion. Agreement boosts conviction; disagreement lets the secondary
// action win at a discounted conviction.
func mergeVerdicts(rule, secondary domain.Vote) domain.Vote {
	merged := rule
	if secondary.Action == rule.Action {
		merged.Conviction = rule.Conviction + 0.1
		if merged.Conviction > 1.0 {
			merged.Conviction = 1.0
		}
		merged.Reasoning = rule.Reasoning + "; verifier concurs"
		return merged
	}

	merged.Action = secondary.Action
	lower := rule.Conviction
	if secondary.Conviction < lower {
		lower = secondary.Conviction
	}
	merged.Conviction = lower * 0.8
	merged.Reasoning = rule.Reasoning + "; verifier overrode to " + string(secondary.Action)
	return merged
}
