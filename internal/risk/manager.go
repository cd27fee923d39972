// Package risk provides Kelly-style position sizing and pre-trade order
// validation against portfolio limits.
package risk

import (
	"fmt"
	"math"

	"consensus-trader/internal/domain"
)

// Manager validates orders and sizes positions within RiskLimits.
type Manager struct {
	limits domain.RiskLimits
}

// NewManager creates a risk manager with the given limits.
func NewManager(limits domain.RiskLimits) *Manager {
	return &Manager{limits: limits}
}

// Limits returns the configured limits.
func (m *Manager) Limits() domain.RiskLimits {
	return m.limits
}

// CalculateKellyPositionSize returns the share quantity for a new
// position: floor(min(portfolio*riskPerTrade/stopLoss, portfolio*maxSize) / price).
// Returns 0 when the portfolio value, price or stop-loss is non-positive.
func (m *Manager) CalculateKellyPositionSize(portfolioValue, price, riskPerTradePct, stopLossPct, maxPositionSizePct float64) int64 {
	if portfolioValue <= 0 || price <= 0 || stopLossPct <= 0 {
		return 0
	}
	riskBudget := portfolioValue * riskPerTradePct / stopLossPct
	capBudget := portfolioValue * maxPositionSizePct
	budget := math.Min(riskBudget, capBudget)
	if budget <= 0 {
		return 0
	}
	return int64(math.Floor(budget / price))
}

// OrderCheck describes the order to validate.
type OrderCheck struct {
	Symbol          string
	Side            domain.OrderSide
	Quantity        int64
	Price           float64
	PortfolioValue  float64
	CurrentExposure float64 // market value of open positions
	OpenPositions   int
	StopLossPrice   *float64 // nil when the caller supplied none
	TakeProfitPrice *float64
}

// ValidationResult is the outcome of ValidateOrder. Suggested* fields are
// set when the order is approvable with an adjustment.
type ValidationResult struct {
	Approved bool
	Reason   string

	SuggestedQuantity   *int64
	SuggestedStopLoss   *float64
	SuggestedTakeProfit *float64
}

func approved(reason string) ValidationResult {
	return ValidationResult{Approved: true, Reason: reason}
}

func rejected(reason string) ValidationResult {
	return ValidationResult{Approved: false, Reason: reason}
}

// ValidateOrder checks a buy order against the limits in a fixed order:
// position count, portfolio value, position size, exposure, stop-loss
// clamp, take-profit floor. Sells are always approved.
func (m *Manager) ValidateOrder(check OrderCheck) ValidationResult {
	if check.Side == domain.SideSell {
		return approved("sell orders bypass entry limits")
	}

	if check.OpenPositions >= m.limits.MaxPositions {
		return rejected(fmt.Sprintf("max concurrent positions reached (%d)", m.limits.MaxPositions))
	}

	if check.PortfolioValue <= 0 {
		return rejected("portfolio value not set")
	}

	result := approved("within limits")
	quantity := check.Quantity

	// Position size cap.
	orderValue := check.Price * float64(quantity)
	positionCap := check.PortfolioValue * m.limits.MaxPositionPct
	if orderValue > positionCap {
		adjusted := int64(math.Floor(positionCap / check.Price))
		if adjusted <= 0 {
			return rejected(fmt.Sprintf("order value %.2f exceeds position cap %.2f", orderValue, positionCap))
		}
		quantity = adjusted
		result.SuggestedQuantity = &adjusted
		result.Reason = fmt.Sprintf("quantity reduced to %d to fit position cap", adjusted)
	}

	// Exposure cap over the whole portfolio.
	orderValue = check.Price * float64(quantity)
	exposureRoom := check.PortfolioValue*m.limits.MaxPortfolioExposure - check.CurrentExposure
	if orderValue > exposureRoom {
		adjusted := int64(math.Floor(exposureRoom / check.Price))
		if adjusted <= 0 {
			return rejected(fmt.Sprintf("exposure room %.2f exhausted", exposureRoom))
		}
		result.SuggestedQuantity = &adjusted
		result.Reason = fmt.Sprintf("quantity reduced to %d to fit exposure cap", adjusted)
	}

	m.clampStopLoss(check, &result)
	m.applyTakeProfitFloor(check, &result)

	return result
}

// clampStopLoss keeps the stop-loss percentage inside
// [MinStopLossPct, MaxStopLossPct], suggesting a corrected price when out
// of range or a default when absent.
func (m *Manager) clampStopLoss(check OrderCheck, result *ValidationResult) {
	if check.StopLossPrice == nil {
		suggestion := check.Price * (1 - m.limits.DefaultStopLossPct)
		result.SuggestedStopLoss = &suggestion
		return
	}

	pct := (check.Price - *check.StopLossPrice) / check.Price
	switch {
	case pct < m.limits.MinStopLossPct:
		suggestion := check.Price * (1 - m.limits.MinStopLossPct)
		result.SuggestedStopLoss = &suggestion
	case pct > m.limits.MaxStopLossPct:
		suggestion := check.Price * (1 - m.limits.MaxStopLossPct)
		result.SuggestedStopLoss = &suggestion
	}
}

// applyTakeProfitFloor enforces MinTakeProfitPct, suggesting a default
// target when absent.
func (m *Manager) applyTakeProfitFloor(check OrderCheck, result *ValidationResult) {
	if check.TakeProfitPrice == nil {
		suggestion := check.Price * (1 + m.limits.DefaultTakeProfitPct)
		result.SuggestedTakeProfit = &suggestion
		return
	}

	pct := (*check.TakeProfitPrice - check.Price) / check.Price
	if pct < m.limits.MinTakeProfitPct {
		suggestion := check.Price * (1 + m.limits.MinTakeProfitPct)
		result.SuggestedTakeProfit = &suggestion
	}
}
