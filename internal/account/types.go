package account

import "time"

// MT5Config points at the broker connector serving one account.
type MT5Config struct {
	BaseURL string `json:"baseUrl"`
	Login   int64  `json:"login"`
}

// RiskLimits bounds what a single account may risk. MaxConcurrentTrades
// caps open positions; MaxTradesPerDay caps the daily count. They are
// distinct limits and both are enforced.
type RiskLimits struct {
	RiskPercent         float64 `json:"riskPercent"`
	MaxDailyLoss        float64 `json:"maxDailyLoss"`
	MaxConcurrentTrades int     `json:"maxConcurrentTrades"`
	MaxTradesPerDay     int     `json:"maxTradesPerDay"`
	MaxDailyRisk        float64 `json:"maxDailyRisk"`
	MaxExposure         float64 `json:"maxExposure"`
}

// KillSwitchConfig holds the hard-stop thresholds for one account. A
// disabled config is never evaluated.
type KillSwitchConfig struct {
	Enabled                bool               `json:"enabled"`
	DailyDDLimit           float64            `json:"dailyDDLimit"`
	WeeklyDDLimit          float64            `json:"weeklyDDLimit"`
	MaxConsecutiveLosses   int                `json:"maxConsecutiveLosses"`
	MaxSpreadPips          float64            `json:"maxSpreadPips"`
	MaxSpreadPipsPerSymbol map[string]float64 `json:"maxSpreadPipsPerSymbol,omitempty"`
	MaxExposure            float64            `json:"maxExposure"`
}

// ExecutionFilterConfig overrides the base execution filter for one
// account. MinSpreadPips is accepted from config for completeness but is
// never allowed to loosen the spread ceiling.
type ExecutionFilterConfig struct {
	MaxTradesPerDay int      `json:"maxTradesPerDay"`
	CooldownMinutes int      `json:"cooldownMinutes"`
	SessionWindows  []string `json:"sessionWindows,omitempty"`
	MinSpreadPips   float64  `json:"minSpreadPips,omitempty"`
}

// AccountInfo is one entry of the accounts config document.
type AccountInfo struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	MT5             MT5Config              `json:"mt5"`
	Symbols         []string               `json:"symbols"`
	Risk            RiskLimits             `json:"risk"`
	KillSwitch      KillSwitchConfig       `json:"killSwitch"`
	ExecutionFilter *ExecutionFilterConfig `json:"executionFilter,omitempty"`
	Enabled         bool                   `json:"enabled"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// AccountRuntimeState is the mutable per-account state the registry owns.
// Mutations are last-writer-wins under the registry's lock; reads hand out
// snapshots.
type AccountRuntimeState struct {
	Paused      bool
	PauseReason string
	Connected   bool
	TradesToday int
	LastTradeAt map[string]time.Time // per symbol, feeds the cooldown filter
	LastError   string
	LastErrorAt time.Time
	ErrorCount  int
}
