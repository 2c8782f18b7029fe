package risk

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"smc-trading-engine/internal/account"
)

func testAccount() account.AccountInfo {
	return account.AccountInfo{
		ID: "acc1",
		Risk: account.RiskLimits{
			RiskPercent:         1.0,
			MaxDailyLoss:        200,
			MaxTradesPerDay:     5,
			MaxConcurrentTrades: 3,
			MaxDailyRisk:        500,
			MaxExposure:         1000,
		},
	}
}

func TestCanTakeNewTradeOrdering(t *testing.T) {
	s := NewService(zerolog.Nop())
	acct := testAccount()

	tests := []struct {
		name   string
		ctx    TradeContext
		allow  bool
		reason string
	}{
		{"clean", TradeContext{Equity: 10000}, true, ""},
		{"daily loss", TradeContext{TodayRealizedPnL: -210}, false, "Daily loss limit"},
		{"daily trades", TradeContext{TradesTakenToday: 5}, false, "Daily trade limit"},
		{"concurrent", TradeContext{ConcurrentTrades: 3}, false, "Max concurrent trades"},
		{"daily risk", TradeContext{CurrentExposure: 500}, false, "Daily risk exposure"},
		{"blocked", TradeContext{GuardrailMode: GuardrailBlocked}, false, "Guardrail mode blocked"},
		// Daily loss outranks every later gate.
		{"loss before trades", TradeContext{TodayRealizedPnL: -210, TradesTakenToday: 9}, false, "Daily loss limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.CanTakeNewTrade(acct, tt.ctx, nil)
			if res.Allowed != tt.allow {
				t.Fatalf("allowed = %v, want %v (reason %q)", res.Allowed, tt.allow, res.Reason)
			}
			if tt.reason != "" && !strings.Contains(res.Reason, tt.reason) {
				t.Errorf("reason = %q, want contains %q", res.Reason, tt.reason)
			}
		})
	}
}

func TestGuardrailReducedHalvesRisk(t *testing.T) {
	s := NewService(zerolog.Nop())
	res := s.CanTakeNewTrade(testAccount(), TradeContext{Equity: 10000, GuardrailMode: GuardrailReduced}, nil)
	if !res.Allowed {
		t.Fatalf("reduced mode must still allow: %s", res.Reason)
	}
	if res.AdjustedRiskPercent != 0.5 {
		t.Errorf("adjusted risk = %.2f, want 0.5", res.AdjustedRiskPercent)
	}
}

func TestRiskOverride(t *testing.T) {
	s := NewService(zerolog.Nop())
	override := 2.0
	res := s.CanTakeNewTrade(testAccount(), TradeContext{Equity: 10000}, &override)
	if res.AdjustedRiskPercent != 2.0 {
		t.Errorf("adjusted risk = %.2f, want override 2.0", res.AdjustedRiskPercent)
	}
}

func TestCalculateLotSizeXAUUSD(t *testing.T) {
	s := NewService(zerolog.Nop())
	// Equity 10000, 1% risk, 50 pip stop on gold:
	// 100 / (50 * 0.1 * 100) = 0.20
	lot := s.CalculateLotSize(testAccount(), TradeContext{Equity: 10000}, 50, "XAUUSD", nil)
	if lot != 0.20 {
		t.Errorf("lot = %.2f, want 0.20", lot)
	}
}

func TestCalculateLotSizeIndex(t *testing.T) {
	s := NewService(zerolog.Nop())
	// 100 / (100 points * 1.0 per point) = 1.00
	lot := s.CalculateLotSize(testAccount(), TradeContext{Equity: 10000}, 100, "US30", nil)
	if lot != 1.00 {
		t.Errorf("lot = %.2f, want 1.00", lot)
	}
}

func TestCalculateLotSizeClampsToMinLot(t *testing.T) {
	s := NewService(zerolog.Nop())
	// Tiny equity: raw lot rounds to 0.00, clamps up to gold's 0.01.
	lot := s.CalculateLotSize(testAccount(), TradeContext{Equity: 100}, 100, "XAUUSD", nil)
	if lot != 0.01 {
		t.Errorf("lot = %.2f, want broker minimum 0.01", lot)
	}

	// US30 clamps to 0.1.
	lot = s.CalculateLotSize(testAccount(), TradeContext{Equity: 100}, 500, "US30", nil)
	if lot != 0.1 {
		t.Errorf("lot = %.2f, want broker minimum 0.1", lot)
	}
}

func TestCalculateLotSizeReducedGuardrail(t *testing.T) {
	s := NewService(zerolog.Nop())
	lot := s.CalculateLotSize(testAccount(), TradeContext{Equity: 10000, GuardrailMode: GuardrailReduced}, 50, "XAUUSD", nil)
	if lot != 0.10 {
		t.Errorf("lot = %.2f, want 0.10 under reduced guardrail", lot)
	}
}

func TestCalculateLotSizeDegenerateInputs(t *testing.T) {
	s := NewService(zerolog.Nop())
	if lot := s.CalculateLotSize(testAccount(), TradeContext{Equity: 0}, 50, "XAUUSD", nil); lot != 0 {
		t.Errorf("zero equity should size 0, got %.2f", lot)
	}
	if lot := s.CalculateLotSize(testAccount(), TradeContext{Equity: 10000}, 0, "XAUUSD", nil); lot != 0 {
		t.Errorf("zero stop distance should size 0, got %.2f", lot)
	}
}
