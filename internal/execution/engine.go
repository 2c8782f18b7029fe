package execution

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-engine/internal/account"
	"smc-trading-engine/internal/database"
	"smc-trading-engine/internal/execfilter"
	"smc-trading-engine/internal/killswitch"
	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/risk"
	"smc-trading-engine/internal/signal"
)

// AccountStore is the slice of the repository the engine needs. Queries
// are on-demand; a nil store degrades to the values carried in BaseContext.
type AccountStore interface {
	LatestEquity(ctx context.Context, accountID string) (*database.EquitySnapshot, error)
	TodayRealizedPnL(ctx context.Context, accountID string) (float64, error)
	WeekRealizedPnL(ctx context.Context, accountID string) (float64, error)
	TodayTradeCount(ctx context.Context, accountID string) (int, error)
	RecentDecisionPnLs(ctx context.Context, accountID string, limit int) ([]float64, error)
}

// SnapshotCache is the Redis layer fronting the equity and cooldown
// reads. A nil cache or a miss falls through to the repository; the
// cache is refilled on repository hits and trade opens.
type SnapshotCache interface {
	Get(ctx context.Context, accountID string) *database.EquitySnapshot
	Put(ctx context.Context, snap *database.EquitySnapshot)
	StampCooldown(ctx context.Context, accountID, symbol string, at time.Time)
	LastTrade(ctx context.Context, accountID, symbol string) time.Time
}

// BaseContext carries per-signal market state shared by every account,
// plus fallbacks used when no storage is attached.
type BaseContext struct {
	CurrentSpreadPips float64
	CurrentExposure   float64
	ConcurrentTrades  int
	Equity            float64   // fallback when storage has no snapshot
	Now               time.Time // zero means time.Now
}

// AccountExecutionResult is the engine's verdict for one account. The
// engine never panics or errors to its caller; every outcome lands here.
type AccountExecutionResult struct {
	AccountID        string  `json:"account_id"`
	Success          bool    `json:"success"`
	Decision         string  `json:"decision"` // TRADE | SKIP
	Ticket           string  `json:"ticket,omitempty"`
	LotSize          float64 `json:"lot_size,omitempty"`
	Error            string  `json:"error,omitempty"`
	RiskReason       string  `json:"risk_reason,omitempty"`
	FilterReason     string  `json:"filter_reason,omitempty"`
	KillSwitchReason string  `json:"kill_switch_reason,omitempty"`
}

// SkipReason returns the dominant reason for a SKIP decision.
func (r AccountExecutionResult) SkipReason() string {
	switch {
	case r.KillSwitchReason != "":
		return r.KillSwitchReason
	case r.RiskReason != "":
		return r.RiskReason
	case r.FilterReason != "":
		return r.FilterReason
	default:
		return r.Error
	}
}

// Engine runs the per-account execution pipeline for one signal.
type Engine struct {
	registry   *account.Registry
	killSwitch *killswitch.Service
	riskSvc    *risk.Service
	filter     *execfilter.Filter
	broker     *BrokerClient
	store      AccountStore
	cache      SnapshotCache
	logger     zerolog.Logger
}

// NewEngine wires the per-account pipeline.
func NewEngine(
	registry *account.Registry,
	ks *killswitch.Service,
	riskSvc *risk.Service,
	filter *execfilter.Filter,
	broker *BrokerClient,
	store AccountStore,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		registry:   registry,
		killSwitch: ks,
		riskSvc:    riskSvc,
		filter:     filter,
		broker:     broker,
		store:      store,
		logger:     logger.With().Str("component", "execution-engine").Logger(),
	}
}

// WithSnapshotCache attaches the Redis layer for equity and cooldown
// reads.
func (e *Engine) WithSnapshotCache(c SnapshotCache) *Engine {
	e.cache = c
	return e
}

// Execute runs the full gate sequence for one account and returns its
// result. All failures are values; a panic in any gate is converted into
// a SKIP result.
func (e *Engine) Execute(
	ctx context.Context,
	acct account.AccountInfo,
	sig *signal.Signal,
	base BaseContext,
	guardrail risk.GuardrailMode,
	strategy string,
) (result AccountExecutionResult) {
	result = AccountExecutionResult{AccountID: acct.ID, Decision: database.DecisionSkip}
	defer func() {
		if r := recover(); r != nil {
			result = AccountExecutionResult{
				AccountID: acct.ID,
				Decision:  database.DecisionSkip,
				Error:     fmt.Sprintf("internal error: %v", r),
			}
			e.logger.Error().Str("account", acct.ID).Interface("panic", r).Msg("execution panic recovered")
		}
	}()

	now := base.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// 1. Eligibility and runtime state.
	if !symbolEligible(acct, sig.Symbol) {
		result.FilterReason = fmt.Sprintf("symbol %s not enabled for account", sig.Symbol)
		return result
	}
	state, ok := e.registry.RuntimeState(acct.ID)
	if !ok {
		result.Error = "account has no runtime state"
		return result
	}
	if state.Paused {
		if e.killSwitch != nil && e.killSwitch.IsActive(acct.ID) {
			reason := state.PauseReason
			if reason == "" {
				reason = "kill switch active"
			}
			result.KillSwitchReason = reason
		} else {
			result.FilterReason = "paused"
		}
		return result
	}
	if !state.Connected {
		result.FilterReason = "connector disconnected"
		return result
	}

	// Storage reads feeding the kill switch and risk gates.
	equity, todayPnL, weekPnL, tradesToday, consecutiveLosses := e.accountSnapshot(ctx, acct.ID, base)

	// 2. Kill switch.
	if e.killSwitch != nil {
		ks := e.killSwitch.Evaluate(ctx, acct, killswitch.EvalContext{
			Symbol:            sig.Symbol,
			TodayRealizedPnL:  todayPnL,
			WeekRealizedPnL:   weekPnL,
			ConsecutiveLosses: consecutiveLosses,
			CurrentSpreadPips: base.CurrentSpreadPips,
			CurrentExposure:   base.CurrentExposure,
		})
		if ks.Blocked {
			reason := strings.Join(ks.Reasons, "; ")
			e.registry.Pause(acct.ID, "kill switch: "+reason)
			result.KillSwitchReason = reason
			return result
		}
	}

	// 3. Risk gates.
	tradeCtx := risk.TradeContext{
		Equity:           equity,
		TodayRealizedPnL: todayPnL,
		TradesTakenToday: tradesToday,
		ConcurrentTrades: base.ConcurrentTrades,
		CurrentExposure:  base.CurrentExposure,
		GuardrailMode:    guardrail,
	}
	riskRes := e.riskSvc.CanTakeNewTrade(acct, tradeCtx, nil)
	if !riskRes.Allowed {
		result.RiskReason = riskRes.Reason
		return result
	}

	// 4. Execution filter (frequency, cooldown, sessions, market hours).
	// The registry map only covers trades taken by this process; the
	// cached stamp makes cooldowns survive a restart.
	if e.cache != nil {
		sym := strings.ToUpper(sig.Symbol)
		if _, ok := state.LastTradeAt[sym]; !ok {
			if last := e.cache.LastTrade(ctx, acct.ID, sym); !last.IsZero() {
				state.LastTradeAt[sym] = last
			}
		}
	}
	if filterRes := e.filter.Check(acct, state, sig.Symbol, now); filterRes.Action == execfilter.ActionSkip {
		result.FilterReason = strings.Join(filterRes.Reasons, "; ")
		return result
	}

	// 5. Validation and lot sizing.
	if sig.Direction == signal.SideBuy && sig.StopLoss >= sig.Entry {
		result.Error = fmt.Sprintf("invalid levels: buy stop loss %.5f not below entry %.5f", sig.StopLoss, sig.Entry)
		return result
	}
	if sig.Direction == signal.SideSell && sig.StopLoss <= sig.Entry {
		result.Error = fmt.Sprintf("invalid levels: sell stop loss %.5f not above entry %.5f", sig.StopLoss, sig.Entry)
		return result
	}
	slPips := market.PriceToPips(sig.Symbol, math.Abs(sig.Entry-sig.StopLoss))
	sizingCtx := tradeCtx
	sizingCtx.GuardrailMode = risk.GuardrailNormal // already folded into AdjustedRiskPercent
	lot := e.riskSvc.CalculateLotSize(acct, sizingCtx, slPips, sig.Symbol, &riskRes.AdjustedRiskPercent)
	if lot <= 0 {
		result.Error = "calculated lot size is zero"
		return result
	}
	result.LotSize = lot

	// 6. Broker call.
	resp, err := e.broker.OpenTrade(ctx, acct.MT5.BaseURL, buildOrder(sig, lot, strategy, acct))
	if err != nil {
		result.Error = err.Error()
		e.registry.RecordError(acct.ID, err)
		return result
	}

	// 7. Success bookkeeping.
	e.registry.RecordTrade(acct.ID, sig.Symbol)
	if e.cache != nil {
		e.cache.StampCooldown(ctx, acct.ID, strings.ToUpper(sig.Symbol), now)
	}
	result.Success = true
	result.Decision = database.DecisionTrade
	result.Ticket = resp.MT5Ticket.String()

	e.logger.Info().
		Str("account", acct.ID).
		Str("symbol", sig.Symbol).
		Str("ticket", result.Ticket).
		Float64("lot", lot).
		Msg("trade opened")
	return result
}

// accountSnapshot gathers the storage-backed account numbers, degrading to
// the base-context fallbacks when storage is missing or failing.
func (e *Engine) accountSnapshot(ctx context.Context, accountID string, base BaseContext) (equity, todayPnL, weekPnL float64, tradesToday, consecutiveLosses int) {
	equity = base.Equity

	cached := false
	if e.cache != nil {
		if snap := e.cache.Get(ctx, accountID); snap != nil {
			equity = snap.Equity
			cached = true
		}
	}
	if e.store == nil {
		return equity, 0, 0, 0, 0
	}

	if !cached {
		if snap, err := e.store.LatestEquity(ctx, accountID); err != nil {
			e.logger.Warn().Err(err).Str("account", accountID).Msg("equity query failed, using fallback")
		} else if snap != nil {
			equity = snap.Equity
			if e.cache != nil {
				e.cache.Put(ctx, snap)
			}
		}
	}
	if pnl, err := e.store.TodayRealizedPnL(ctx, accountID); err != nil {
		e.logger.Warn().Err(err).Str("account", accountID).Msg("pnl query failed")
	} else {
		todayPnL = pnl
	}
	if pnl, err := e.store.WeekRealizedPnL(ctx, accountID); err != nil {
		e.logger.Warn().Err(err).Str("account", accountID).Msg("weekly pnl query failed")
	} else {
		weekPnL = pnl
	}
	if n, err := e.store.TodayTradeCount(ctx, accountID); err != nil {
		e.logger.Warn().Err(err).Str("account", accountID).Msg("trade count query failed")
	} else {
		tradesToday = n
	}
	if pnls, err := e.store.RecentDecisionPnLs(ctx, accountID, 10); err != nil {
		e.logger.Warn().Err(err).Str("account", accountID).Msg("pnl history query failed")
	} else {
		for _, p := range pnls {
			if p >= 0 {
				break
			}
			consecutiveLosses++
		}
	}
	return equity, todayPnL, weekPnL, tradesToday, consecutiveLosses
}

func symbolEligible(acct account.AccountInfo, symbol string) bool {
	for _, s := range acct.Symbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// buildOrder maps the signal onto the connector payload.
func buildOrder(sig *signal.Signal, lot float64, strategy string, acct account.AccountInfo) OpenTradeRequest {
	direction := "BUY"
	if sig.Direction == signal.SideSell {
		direction = "SELL"
	}
	entryType := strings.ToUpper(string(sig.OrderKind))

	req := OpenTradeRequest{
		Symbol:          sig.Symbol,
		Direction:       direction,
		EntryType:       entryType,
		OrderKind:       string(sig.OrderKind),
		EntryPrice:      sig.Entry,
		LotSize:         lot,
		StopLossPrice:   sig.StopLoss,
		TakeProfitPrice: sig.TakeProfit,
		StrategyID:      strategy,
		Metadata: map[string]interface{}{
			"signal_id":        sig.ID,
			"confluence_score": sig.ConfluenceScore,
		},
	}
	if len(acct.Metadata) > 0 {
		for k, v := range acct.Metadata {
			req.Metadata[k] = v
		}
	}
	return req
}
