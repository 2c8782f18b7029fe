package database

import (
	"encoding/json"
	"time"
)

// Decision values persisted on account_trade_decisions rows.
const (
	DecisionTrade = "TRADE"
	DecisionSkip  = "SKIP"
)

// Kill-switch event types.
const (
	KillSwitchActivated   = "activated"
	KillSwitchDeactivated = "deactivated"
)

// EquitySnapshot is one row of account_live_equity.
type EquitySnapshot struct {
	ID             int64     `json:"id"`
	AccountID      string    `json:"account_id"`
	BrokerAccount  string    `json:"broker_account"`
	Timestamp      time.Time `json:"timestamp"`
	Balance        float64   `json:"balance"`
	Equity         float64   `json:"equity"`
	FloatingPnL    float64   `json:"floating_pnl"`
	ClosedPnLToday float64   `json:"closed_pnl_today"`
	ClosedPnLWeek  float64   `json:"closed_pnl_week"`
	MaxDrawdownAbs float64   `json:"max_drawdown_abs"`
}

// TradeDecision is one row of account_trade_decisions: the outcome of the
// per-account execution pipeline for one signal.
type TradeDecision struct {
	ID               int64           `json:"id"`
	AccountID        string          `json:"account_id"`
	Timestamp        time.Time       `json:"timestamp"`
	Symbol           string          `json:"symbol"`
	Strategy         string          `json:"strategy"`
	Decision         string          `json:"decision"`
	RiskReason       string          `json:"risk_reason,omitempty"`
	FilterReason     string          `json:"filter_reason,omitempty"`
	KillSwitchReason string          `json:"kill_switch_reason,omitempty"`
	ExecutionResult  json.RawMessage `json:"execution_result,omitempty"`
	PnL              *float64        `json:"pnl,omitempty"`
}

// KillSwitchEvent is one row of account_kill_switch_events.
type KillSwitchEvent struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"account_id"`
	EventType string    `json:"event_type"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
