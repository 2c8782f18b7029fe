package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"smc-trading-engine/internal/account"
	"smc-trading-engine/internal/market"
)

// GuardrailMode is an external risk posture applied on top of the account's
// own limits.
type GuardrailMode string

const (
	GuardrailNormal  GuardrailMode = "normal"
	GuardrailReduced GuardrailMode = "reduced"
	GuardrailBlocked GuardrailMode = "blocked"
)

// TradeContext carries the account state queried on demand from storage.
type TradeContext struct {
	Equity           float64
	TodayRealizedPnL float64
	TradesTakenToday int
	ConcurrentTrades int
	CurrentExposure  float64
	GuardrailMode    GuardrailMode
}

// CheckResult is the outcome of a pre-trade risk check. When the guardrail
// posture is reduced, AdjustedRiskPercent carries the halved risk.
type CheckResult struct {
	Allowed             bool
	Reason              string
	AdjustedRiskPercent float64
}

// Service enforces per-account risk limits and sizes positions.
type Service struct {
	logger zerolog.Logger
}

// NewService creates a risk service.
func NewService(logger zerolog.Logger) *Service {
	return &Service{logger: logger.With().Str("component", "risk").Logger()}
}

// CanTakeNewTrade runs the pre-trade gates in order; the first failure
// wins and its reason is returned verbatim to the decision row.
func (s *Service) CanTakeNewTrade(acct account.AccountInfo, ctx TradeContext, riskOverride *float64) CheckResult {
	limits := acct.Risk
	riskPct := limits.RiskPercent
	if riskOverride != nil && *riskOverride > 0 {
		riskPct = *riskOverride
	}
	res := CheckResult{AdjustedRiskPercent: riskPct}

	if limits.MaxDailyLoss > 0 && ctx.TodayRealizedPnL <= -limits.MaxDailyLoss {
		res.Reason = fmt.Sprintf("Daily loss limit reached: %.2f <= -%.2f", ctx.TodayRealizedPnL, limits.MaxDailyLoss)
		return res
	}
	if limits.MaxTradesPerDay > 0 && ctx.TradesTakenToday >= limits.MaxTradesPerDay {
		res.Reason = fmt.Sprintf("Daily trade limit reached: %d/%d", ctx.TradesTakenToday, limits.MaxTradesPerDay)
		return res
	}
	if limits.MaxConcurrentTrades > 0 && ctx.ConcurrentTrades >= limits.MaxConcurrentTrades {
		res.Reason = fmt.Sprintf("Max concurrent trades reached: %d/%d", ctx.ConcurrentTrades, limits.MaxConcurrentTrades)
		return res
	}
	if limits.MaxDailyRisk > 0 && ctx.CurrentExposure >= limits.MaxDailyRisk {
		res.Reason = fmt.Sprintf("Daily risk exposure reached: %.2f >= %.2f", ctx.CurrentExposure, limits.MaxDailyRisk)
		return res
	}
	if limits.MaxExposure > 0 && ctx.CurrentExposure >= limits.MaxExposure {
		res.Reason = fmt.Sprintf("Max exposure reached: %.2f >= %.2f", ctx.CurrentExposure, limits.MaxExposure)
		return res
	}

	switch ctx.GuardrailMode {
	case GuardrailBlocked:
		res.Reason = "Guardrail mode blocked"
		return res
	case GuardrailReduced:
		res.AdjustedRiskPercent = riskPct * 0.5
		s.logger.Debug().
			Str("account", acct.ID).
			Float64("risk_percent", res.AdjustedRiskPercent).
			Msg("guardrail reduced risk")
	}

	res.Allowed = true
	return res
}

// CalculateLotSize converts monetary risk into the broker's lot unit.
// Indices size off the per-lot point value; FX and metals off pip value
// times contract size. The result is rounded to 2 decimals and clamped up
// to the broker minimum.
func (s *Service) CalculateLotSize(
	acct account.AccountInfo,
	ctx TradeContext,
	stopLossPips float64,
	symbol string,
	riskOverride *float64,
) float64 {
	riskPct := acct.Risk.RiskPercent
	if riskOverride != nil && *riskOverride > 0 {
		riskPct = *riskOverride
	}
	if ctx.GuardrailMode == GuardrailReduced {
		riskPct *= 0.5
	}
	riskAmount := riskPct / 100 * ctx.Equity
	if riskAmount <= 0 || stopLossPips <= 0 {
		return 0
	}

	spec := market.Spec(symbol)
	var lot float64
	if spec.IsIndex {
		// stop-loss pips arrive as points for index symbols
		lot = riskAmount / (stopLossPips * spec.PointValue)
	} else {
		lot = riskAmount / (stopLossPips * spec.PipValue * spec.ContractSize)
	}

	lot = math.Round(lot*100) / 100
	if lot < spec.MinLot {
		lot = spec.MinLot
	}

	s.logger.Debug().
		Str("account", acct.ID).
		Str("symbol", symbol).
		Float64("risk_amount", riskAmount).
		Float64("sl_pips", stopLossPips).
		Float64("lot", lot).
		Msg("lot size calculated")
	return lot
}
