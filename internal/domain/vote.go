package domain

// VoteAction is the binding action a persona casts.
type VoteAction string

const (
	ActionBuy      VoteAction = "BUY"
	ActionSell     VoteAction = "SELL"
	ActionHold     VoteAction = "HOLD"
	ActionAbstain  VoteAction = "ABSTAIN"
	ActionAdvisory VoteAction = "ADVISORY"
)

// PersonaCategory groups personas by investment style. Category diversity
// among BUY voters is one of the consensus gates.
type PersonaCategory string

const (
	CategoryValue      PersonaCategory = "VALUE"
	CategoryGrowth     PersonaCategory = "GROWTH"
	CategoryMomentum   PersonaCategory = "MOMENTUM"
	CategoryDividend   PersonaCategory = "DIVIDEND"
	CategoryInnovation PersonaCategory = "INNOVATION"
)

// Vote is one binding persona opinion for a symbol.
type Vote struct {
	PersonaName string
	Action      VoteAction
	Conviction  float64 // [0, 1]
	Reasoning   string
	CriteriaMet map[string]bool
	Category    PersonaCategory
}

// AbstainVote builds the synthesized vote used when a persona fails or
// times out. Evaluation never aborts for a single persona's failure.
func AbstainVote(personaName string, category PersonaCategory, reason string) Vote {
	return Vote{
		PersonaName: personaName,
		Action:      ActionAbstain,
		Conviction:  0,
		Reasoning:   reason,
		Category:    category,
	}
}

// AdvisoryVote is a non-binding sibling of Vote. It never participates in
// the consensus gates; InnovationScore replaces conviction.
type AdvisoryVote struct {
	PersonaName     string
	Action          VoteAction // always ADVISORY
	InnovationScore float64    // [0, 1]
	Reasoning       string
}
