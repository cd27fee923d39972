package persona

// renamed gives a tuned variant its own roster name.
type renamed struct {
	RuleVoter
	name string
}

func (r renamed) Name() string { return r.name }

// Rename wraps a voter under a distinct roster name.
func Rename(v RuleVoter, name string) RuleVoter {
	return renamed{RuleVoter: v, name: name}
}

// DefaultRoster returns the standard ten binding personas: the four
// base strategies plus tuned variants, spread across all categories so
// the diversity gate can be satisfied.
func DefaultRoster() []RuleVoter {
	deepValue := NewValueVoter()
	deepValue.MaxPER = 10
	deepValue.MaxPBR = 1.0

	aggressiveGrowth := NewGrowthVoter()
	aggressiveGrowth.MinEPSGrowth = 0.30
	aggressiveGrowth.MinRevenueGrowth = 0.20

	garp := NewGrowthVoter()
	garp.MinEPSGrowth = 0.10
	garp.MinRevenueGrowth = 0.05

	trendFollower := NewMomentumVoter()
	trendFollower.MinVolumeRatio = 1.5

	breakout := NewMomentumVoter()
	breakout.MinRSI = 55
	breakout.MaxRSI = 75

	incomeQuality := NewDividendVoter()
	incomeQuality.MinYield = 0.04
	incomeQuality.MaxDebtRatio = 1.0

	return []RuleVoter{
		NewValueVoter(),
		Rename(deepValue, "deep_value"),
		NewGrowthVoter(),
		Rename(aggressiveGrowth, "aggressive_growth"),
		Rename(garp, "garp"),
		NewMomentumVoter(),
		Rename(trendFollower, "trend_follower"),
		Rename(breakout, "breakout"),
		NewDividendVoter(),
		Rename(incomeQuality, "income_quality"),
	}
}
