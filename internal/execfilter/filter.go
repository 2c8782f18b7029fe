package execfilter

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-engine/internal/account"
	"smc-trading-engine/internal/signal"
)

// Actions returned by the filter.
const (
	ActionTrade = "TRADE"
	ActionSkip  = "SKIP"
)

// Config is the base execution-filter configuration; per-account overrides
// from the accounts document are layered on top.
type Config struct {
	MaxTradesPerDay  int
	CooldownMinutes  int
	SessionWindows   []string
	CheckMarketHours bool
}

// Decision is the filter verdict with every reason that fired.
type Decision struct {
	Action  string
	Reasons []string
}

// Filter gates per-account execution on trade frequency, cooldowns,
// session windows, and market hours.
type Filter struct {
	base   Config
	logger zerolog.Logger
}

// New creates an execution filter over the base configuration.
func New(base Config, logger zerolog.Logger) *Filter {
	return &Filter{
		base:   base,
		logger: logger.With().Str("component", "execution-filter").Logger(),
	}
}

// effective layers the account's overrides onto the base config. A
// minSpreadPips override is deliberately ignored here: spread ceilings
// belong to the kill switch and must never be loosened per account.
func (f *Filter) effective(acct account.AccountInfo) Config {
	cfg := f.base
	o := acct.ExecutionFilter
	if o == nil {
		return cfg
	}
	if o.MaxTradesPerDay > 0 {
		cfg.MaxTradesPerDay = o.MaxTradesPerDay
	}
	if o.CooldownMinutes > 0 {
		cfg.CooldownMinutes = o.CooldownMinutes
	}
	if len(o.SessionWindows) > 0 {
		cfg.SessionWindows = o.SessionWindows
	}
	return cfg
}

// Check evaluates the filter for one account at the given instant. All
// failing conditions are reported, not just the first.
func (f *Filter) Check(acct account.AccountInfo, state account.AccountRuntimeState, symbol string, now time.Time) Decision {
	cfg := f.effective(acct)
	var reasons []string

	if cfg.MaxTradesPerDay > 0 && state.TradesToday >= cfg.MaxTradesPerDay {
		reasons = append(reasons, fmt.Sprintf("daily trade cap reached: %d/%d", state.TradesToday, cfg.MaxTradesPerDay))
	}

	if cfg.CooldownMinutes > 0 {
		if last, ok := state.LastTradeAt[strings.ToUpper(symbol)]; ok {
			elapsed := now.Sub(last)
			if cooldown := time.Duration(cfg.CooldownMinutes) * time.Minute; elapsed < cooldown {
				reasons = append(reasons, fmt.Sprintf("cooldown on %s: %.0f of %d minutes elapsed",
					strings.ToUpper(symbol), elapsed.Minutes(), cfg.CooldownMinutes))
			}
		}
	}

	if len(cfg.SessionWindows) > 0 {
		allowed := signal.ParseSessions(cfg.SessionWindows)
		if !signal.SessionValid(now, allowed) {
			reasons = append(reasons, fmt.Sprintf("outside session windows %v", cfg.SessionWindows))
		}
	}

	if cfg.CheckMarketHours && !MarketOpen(now) {
		reasons = append(reasons, "market closed (weekend)")
	}

	if len(reasons) > 0 {
		return Decision{Action: ActionSkip, Reasons: reasons}
	}
	return Decision{Action: ActionTrade}
}

var nyLocation = mustLoadNY()

func mustLoadNY() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("tzdata missing America/New_York: " + err.Error())
	}
	return loc
}

// MarketOpen reports whether the FX/CFD market is open at the instant:
// closed from Friday 17:00 New York until Sunday 17:00 New York.
func MarketOpen(t time.Time) bool {
	ny := t.In(nyLocation)
	switch ny.Weekday() {
	case time.Saturday:
		return false
	case time.Friday:
		return ny.Hour() < 17
	case time.Sunday:
		return ny.Hour() >= 17
	default:
		return true
	}
}
