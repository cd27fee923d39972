package persona

import (
	"context"

	"consensus-trader/internal/domain"
)

// MomentumVoter follows confirmed trends and sells exhaustion.
type MomentumVoter struct {
	MinRSI         float64
	MaxRSI         float64
	OverboughtRSI  float64
	MinVolumeRatio float64
}

// NewMomentumVoter creates a momentum persona with standard thresholds.
func NewMomentumVoter() *MomentumVoter {
	return &MomentumVoter{
		MinRSI:         50,
		MaxRSI:         70,
		OverboughtRSI:  80,
		MinVolumeRatio: 1.2,
	}
}

func (v *MomentumVoter) Name() string                     { return "momentum" }
func (v *MomentumVoter) Category() domain.PersonaCategory { return domain.CategoryMomentum }

// Evaluate votes SELL on overbought exhaustion, otherwise BUY when at
// least three of the four trend criteria hold.
func (v *MomentumVoter) Evaluate(_ context.Context, snapshot *domain.MarketSnapshot) (domain.Vote, error) {
	tech := snapshot.Technicals

	if tech.RSI14 >= v.OverboughtRSI {
		return domain.Vote{
			PersonaName: v.Name(),
			Action:      domain.ActionSell,
			Conviction:  0.7,
			Reasoning:   "RSI in exhaustion territory",
			Category:    v.Category(),
		}, nil
	}

	volumeRatio := 0.0
	if tech.AvgVolume20d > 0 {
		volumeRatio = float64(tech.Volume) / float64(tech.AvgVolume20d)
	}

	criteria := map[string]bool{
		"rsi_in_band":      tech.RSI14 >= v.MinRSI && tech.RSI14 <= v.MaxRSI,
		"macd_bullish":     tech.MACD > tech.MACDSignal,
		"stacked_averages": tech.SMA20 > 0 && snapshot.Price > tech.SMA20 && tech.SMA20 > tech.SMA60,
		"volume_confirms":  volumeRatio >= v.MinVolumeRatio,
	}
	return criteriaVote(v.Name(), v.Category(), criteria, 3), nil
}
