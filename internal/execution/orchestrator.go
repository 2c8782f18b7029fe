package execution

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-engine/internal/account"
	"smc-trading-engine/internal/database"
	"smc-trading-engine/internal/events"
	"smc-trading-engine/internal/metrics"
	"smc-trading-engine/internal/risk"
	"smc-trading-engine/internal/signal"
)

// maxWorkers caps the fan-out concurrency across accounts.
const maxWorkers = 32

// SkippedAccount names one account that declined the signal and why.
type SkippedAccount struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

// AggregatedExecutionResult is the outcome of fanning one signal out to
// every eligible account. Every account lands in exactly one bucket:
// traded, skipped (a gate said no), or failed (the broker call or
// validation broke).
type AggregatedExecutionResult struct {
	Symbol          string                   `json:"symbol"`
	SignalID        string                   `json:"signal_id"`
	TradedAccounts  []string                 `json:"traded_accounts"`
	SkippedAccounts []SkippedAccount         `json:"skipped_accounts"`
	FailedAccounts  []SkippedAccount         `json:"failed_accounts"`
	Results         []AccountExecutionResult `json:"results"`
}

// DecisionWriter persists decision rows; the database repository satisfies
// it. Persistence failures never fail the execution itself.
type DecisionWriter interface {
	InsertTradeDecision(ctx context.Context, d *database.TradeDecision) error
}

// Orchestrator fans a signal out to all eligible accounts in parallel and
// aggregates the per-account verdicts.
type Orchestrator struct {
	engine   *Engine
	registry *account.Registry
	writer   DecisionWriter
	bus      *events.EventBus
	strategy string
	logger   zerolog.Logger
}

// NewOrchestrator wires the fan-out layer. writer may be nil; decisions
// are then only logged.
func NewOrchestrator(engine *Engine, registry *account.Registry, writer DecisionWriter, strategy string, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		engine:   engine,
		registry: registry,
		writer:   writer,
		strategy: strategy,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// WithEventBus attaches the event bus trade outcomes are published to.
func (o *Orchestrator) WithEventBus(bus *events.EventBus) *Orchestrator {
	o.bus = bus
	return o
}

// ExecuteSignal runs the signal against every enabled account trading its
// symbol. Accounts run independently; one account's failure never stops
// the others, and the aggregate always covers all of them.
func (o *Orchestrator) ExecuteSignal(ctx context.Context, sig *signal.Signal, base BaseContext, guardrail risk.GuardrailMode) *AggregatedExecutionResult {
	accounts := o.registry.AccountsForSymbol(sig.Symbol)
	agg := &AggregatedExecutionResult{Symbol: sig.Symbol, SignalID: sig.ID}
	if len(accounts) == 0 {
		o.logger.Info().Str("symbol", sig.Symbol).Msg("no eligible accounts for signal")
		return agg
	}

	workers := len(accounts)
	if workers > maxWorkers {
		workers = maxWorkers
	}

	jobs := make(chan account.AccountInfo)
	results := make([]AccountExecutionResult, 0, len(accounts))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for acct := range jobs {
				res := o.engine.Execute(ctx, acct, sig, base, guardrail, o.strategy)
				metrics.TradeDecisions.WithLabelValues(sig.Symbol, res.Decision).Inc()
				o.persistDecision(ctx, acct.ID, sig, res, base)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}
	for _, acct := range accounts {
		jobs <- acct
	}
	close(jobs)
	wg.Wait()

	for _, res := range results {
		agg.Results = append(agg.Results, res)
		switch {
		case res.Success:
			agg.TradedAccounts = append(agg.TradedAccounts, res.AccountID)
			o.publish(events.EventTradeOpened, sig, res)
		case res.KillSwitchReason != "" || res.RiskReason != "" || res.FilterReason != "":
			agg.SkippedAccounts = append(agg.SkippedAccounts, SkippedAccount{AccountID: res.AccountID, Reason: res.SkipReason()})
			o.publish(events.EventTradeSkipped, sig, res)
		default:
			agg.FailedAccounts = append(agg.FailedAccounts, SkippedAccount{AccountID: res.AccountID, Reason: res.Error})
			o.publish(events.EventTradeFailed, sig, res)
		}
	}

	o.logger.Info().
		Str("symbol", sig.Symbol).
		Str("signal_id", sig.ID).
		Int("accounts", len(accounts)).
		Int("traded", len(agg.TradedAccounts)).
		Int("skipped", len(agg.SkippedAccounts)).
		Int("failed", len(agg.FailedAccounts)).
		Msg("signal fan-out complete")
	return agg
}

func (o *Orchestrator) publish(eventType events.EventType, sig *signal.Signal, res AccountExecutionResult) {
	if o.bus == nil {
		return
	}
	data := map[string]interface{}{
		"account":   res.AccountID,
		"symbol":    sig.Symbol,
		"signal_id": sig.ID,
	}
	if res.Success {
		data["ticket"] = res.Ticket
		data["lot_size"] = res.LotSize
	} else if reason := res.SkipReason(); reason != "" {
		data["reason"] = reason
	}
	o.bus.Publish(eventType, data)
}

// persistDecision writes the decision row. Failures are logged and
// swallowed; execution already happened.
func (o *Orchestrator) persistDecision(ctx context.Context, accountID string, sig *signal.Signal, res AccountExecutionResult, base BaseContext) {
	if o.writer == nil {
		return
	}

	ts := base.Now
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	execJSON, err := json.Marshal(res)
	if err != nil {
		execJSON = nil
	}
	d := &database.TradeDecision{
		AccountID:        accountID,
		Timestamp:        ts,
		Symbol:           sig.Symbol,
		Strategy:         o.strategy,
		Decision:         res.Decision,
		RiskReason:       res.RiskReason,
		FilterReason:     res.FilterReason,
		KillSwitchReason: res.KillSwitchReason,
		ExecutionResult:  execJSON,
	}
	if err := o.writer.InsertTradeDecision(ctx, d); err != nil {
		o.logger.Error().Err(err).Str("account", accountID).Msg("failed to persist trade decision")
	}
}
