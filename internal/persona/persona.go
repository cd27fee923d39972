// Package persona implements the voting strategies. Each persona
// inspects a market snapshot and casts a vote with a conviction score;
// personas are deterministic rules except VerifiedVoter, which may
// consult a secondary verifier behind a circuit breaker.
package persona

import (
	"fmt"
	"sort"
	"strings"

	"consensus-trader/internal/domain"
)

// criteriaVote builds a vote from a named criteria map: BUY when at
// least minMet criteria hold, HOLD otherwise. Conviction is the met
// fraction.
func criteriaVote(name string, category domain.PersonaCategory, criteria map[string]bool, minMet int) domain.Vote {
	met := 0
	for _, ok := range criteria {
		if ok {
			met++
		}
	}

	action := domain.ActionHold
	if met >= minMet {
		action = domain.ActionBuy
	}

	return domain.Vote{
		PersonaName: name,
		Action:      action,
		Conviction:  float64(met) / float64(len(criteria)),
		Reasoning:   describeCriteria(criteria, met),
		CriteriaMet: criteria,
		Category:    category,
	}
}

func describeCriteria(criteria map[string]bool, met int) string {
	names := make([]string, 0, len(criteria))
	for name, ok := range criteria {
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return fmt.Sprintf("0/%d criteria met", len(criteria))
	}
	return fmt.Sprintf("%d/%d criteria met: %s", met, len(criteria), strings.Join(names, ", "))
}
