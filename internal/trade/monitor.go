package trade

import (
	"time"

	"consensus-trader/internal/domain"
)

// Default exit thresholds.
const (
	DefaultStopLossPct    = 0.07
	DefaultTakeProfitPct  = 0.20
	DefaultTrailingPct    = 0.05
	DefaultMaxHoldingDays = 90
)

// WarningMargin is how close the price may drift toward a downside
// trigger, as a fraction of the trigger price, before Warn fires.
const WarningMargin = 0.02

// MonitorConfig tunes the position monitor.
type MonitorConfig struct {
	StopLossPct    float64
	TakeProfitPct  float64
	TrailingPct    float64
	MaxHoldingDays int
}

// DefaultMonitorConfig returns the standard exit thresholds.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		StopLossPct:    DefaultStopLossPct,
		TakeProfitPct:  DefaultTakeProfitPct,
		TrailingPct:    DefaultTrailingPct,
		MaxHoldingDays: DefaultMaxHoldingDays,
	}
}

// PositionMonitor detects exit conditions on open positions.
type PositionMonitor struct {
	cfg MonitorConfig

	now func() time.Time
}

// NewPositionMonitor creates a monitor with the given thresholds.
func NewPositionMonitor(cfg MonitorConfig) *PositionMonitor {
	return &PositionMonitor{cfg: cfg, now: time.Now}
}

// Check updates the entry's current price and unrealized P&L, then
// evaluates exit conditions in fixed priority order: STOP_LOSS →
// TAKE_PROFIT → TRAILING_STOP → MAX_HOLDING. The trailing stop ratchets
// upward and never retreats. Returns the first triggered exit reason, or
// "" when the position stays open. Entries without buy fields are left
// untouched.
func (m *PositionMonitor) Check(entry *domain.PipelineEntry, currentPrice float64) string {
	if entry.BuyPrice <= 0 || entry.BuyQuantity <= 0 {
		return ""
	}

	entry.CurrentPrice = currentPrice
	entry.UnrealizedPnl = (currentPrice - entry.BuyPrice) * float64(entry.BuyQuantity)

	if currentPrice <= entry.BuyPrice*(1-m.cfg.StopLossPct) {
		return domain.ExitReasonStopLoss
	}

	if currentPrice >= entry.BuyPrice*(1+m.cfg.TakeProfitPct) {
		return domain.ExitReasonTakeProfit
	}

	candidate := currentPrice * (1 - m.cfg.TrailingPct)
	if candidate > entry.TrailingStop {
		entry.TrailingStop = candidate
	}
	if currentPrice <= entry.TrailingStop {
		return domain.ExitReasonTrailingStop
	}

	if entry.DaysHeld(m.now()) >= m.cfg.MaxHoldingDays {
		return domain.ExitReasonMaxHolding
	}

	return ""
}

// Warn reports the downside exit the price is approaching but has not
// crossed yet: within WarningMargin above the stop-loss or trailing
// stop, or within one day of the max holding period. Call it after
// Check has returned "" for the same price; it never mutates the entry.
// Returns the nearest exit reason, or "" when the position is
// comfortably open.
func (m *PositionMonitor) Warn(entry *domain.PipelineEntry, currentPrice float64) string {
	if entry.BuyPrice <= 0 || entry.BuyQuantity <= 0 {
		return ""
	}

	stop := entry.BuyPrice * (1 - m.cfg.StopLossPct)
	if currentPrice > stop && currentPrice <= stop*(1+WarningMargin) {
		return domain.ExitReasonStopLoss
	}

	if entry.TrailingStop > 0 && currentPrice > entry.TrailingStop &&
		currentPrice <= entry.TrailingStop*(1+WarningMargin) {
		return domain.ExitReasonTrailingStop
	}

	if m.cfg.MaxHoldingDays > 0 && entry.DaysHeld(m.now()) >= m.cfg.MaxHoldingDays-1 {
		return domain.ExitReasonMaxHolding
	}

	return ""
}
