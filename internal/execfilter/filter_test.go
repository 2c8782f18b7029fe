package execfilter

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-engine/internal/account"
)

// Monday 2026-01-05 19:00 UTC = 14:00 New York: inside london and newyork.
var tradingHour = time.Date(2026, 1, 5, 19, 0, 0, 0, time.UTC)

func baseFilter() *Filter {
	return New(Config{
		MaxTradesPerDay: 5,
		CooldownMinutes: 30,
		SessionWindows:  []string{"london", "newyork"},
	}, zerolog.Nop())
}

func TestCheckPassesCleanState(t *testing.T) {
	d := baseFilter().Check(account.AccountInfo{ID: "acc1"}, account.AccountRuntimeState{}, "XAUUSD", tradingHour)
	if d.Action != ActionTrade {
		t.Fatalf("action = %s, reasons %v", d.Action, d.Reasons)
	}
}

func TestCheckDailyCap(t *testing.T) {
	d := baseFilter().Check(account.AccountInfo{ID: "acc1"},
		account.AccountRuntimeState{TradesToday: 5}, "XAUUSD", tradingHour)
	if d.Action != ActionSkip || !strings.Contains(d.Reasons[0], "daily trade cap") {
		t.Errorf("decision = %+v", d)
	}
}

func TestCheckCooldown(t *testing.T) {
	state := account.AccountRuntimeState{
		LastTradeAt: map[string]time.Time{"XAUUSD": tradingHour.Add(-10 * time.Minute)},
	}
	d := baseFilter().Check(account.AccountInfo{ID: "acc1"}, state, "xauusd", tradingHour)
	if d.Action != ActionSkip || !strings.Contains(d.Reasons[0], "cooldown") {
		t.Errorf("decision = %+v", d)
	}

	// Cooldown elapsed.
	state.LastTradeAt["XAUUSD"] = tradingHour.Add(-31 * time.Minute)
	d = baseFilter().Check(account.AccountInfo{ID: "acc1"}, state, "XAUUSD", tradingHour)
	if d.Action != ActionTrade {
		t.Errorf("elapsed cooldown should pass, got %+v", d)
	}
}

func TestCheckSessionWindow(t *testing.T) {
	// 03:00 UTC Monday = 22:00 Sunday NY: outside london/newyork.
	offHours := time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC)
	d := baseFilter().Check(account.AccountInfo{ID: "acc1"}, account.AccountRuntimeState{}, "XAUUSD", offHours)
	if d.Action != ActionSkip || !strings.Contains(d.Reasons[0], "session") {
		t.Errorf("decision = %+v", d)
	}
}

func TestCheckAccountOverrides(t *testing.T) {
	acct := account.AccountInfo{
		ID: "acc1",
		ExecutionFilter: &account.ExecutionFilterConfig{
			MaxTradesPerDay: 2,
			SessionWindows:  []string{"asian"},
			MinSpreadPips:   0.5, // must have no effect
		},
	}

	// Override cap of 2 applies instead of the base 5.
	d := baseFilter().Check(acct, account.AccountRuntimeState{TradesToday: 2}, "XAUUSD", tradingHour)
	if d.Action != ActionSkip {
		t.Errorf("override cap ignored: %+v", d)
	}

	// 14:00 NY is outside the asian window the account demands.
	d = baseFilter().Check(acct, account.AccountRuntimeState{}, "XAUUSD", tradingHour)
	if d.Action != ActionSkip {
		t.Errorf("override sessions ignored: %+v", d)
	}
}

func TestCheckCollectsAllReasons(t *testing.T) {
	state := account.AccountRuntimeState{
		TradesToday: 9,
		LastTradeAt: map[string]time.Time{"XAUUSD": tradingHour.Add(-time.Minute)},
	}
	d := baseFilter().Check(account.AccountInfo{ID: "acc1"}, state, "XAUUSD", tradingHour)
	if len(d.Reasons) != 2 {
		t.Errorf("expected both reasons, got %v", d.Reasons)
	}
}

func TestMarketOpen(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		open bool
	}{
		// 2026-01-09 is a Friday, 2026-01-10 Saturday, 2026-01-11 Sunday.
		{"friday afternoon NY", time.Date(2026, 1, 9, 20, 0, 0, 0, time.UTC), true},   // 15:00 NY
		{"friday after close", time.Date(2026, 1, 9, 23, 0, 0, 0, time.UTC), false},   // 18:00 NY
		{"saturday", time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC), false},
		{"sunday before open", time.Date(2026, 1, 11, 20, 0, 0, 0, time.UTC), false},  // 15:00 NY
		{"sunday after open", time.Date(2026, 1, 11, 23, 0, 0, 0, time.UTC), true},    // 18:00 NY
		{"midweek", time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		if got := MarketOpen(tt.t); got != tt.open {
			t.Errorf("%s: MarketOpen = %v, want %v", tt.name, got, tt.open)
		}
	}
}

func TestMarketHoursGate(t *testing.T) {
	f := New(Config{CheckMarketHours: true}, zerolog.Nop())
	saturday := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	d := f.Check(account.AccountInfo{ID: "acc1"}, account.AccountRuntimeState{}, "XAUUSD", saturday)
	if d.Action != ActionSkip || !strings.Contains(d.Reasons[0], "market closed") {
		t.Errorf("decision = %+v", d)
	}
}
