package bias

import (
	"testing"
	"time"

	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/structure"
)

func mkCandles(tf market.Timeframe, rows [][4]float64) []market.Candle {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, len(rows))
	for i, r := range rows {
		candles[i] = market.Candle{
			Symbol:    "XAUUSD",
			Timeframe: tf,
			StartTime: base.Add(time.Duration(i) * tf.Duration()),
			EndTime:   base.Add(time.Duration(i+1) * tf.Duration()),
			Open:      r[0],
			High:      r[1],
			Low:       r[2],
			Close:     r[3],
			Volume:    100,
		}
	}
	return candles
}

func TestHTFBiasBullishFromStructure(t *testing.T) {
	// Clean uptrend: swing high at index 2 broken by candle 4.
	candles := mkCandles(market.H4, [][4]float64{
		{100, 102, 99, 101},
		{101, 104, 100, 103},
		{103, 106, 102, 105},
		{105, 105.5, 103, 104},
		{104, 108, 103.5, 107},
		{107, 110, 106, 109},
	})

	res := NewAnalyzer(true, 0).Analyze(candles)

	if res.Direction != structure.TrendBullish {
		t.Errorf("direction = %s, want bullish", res.Direction)
	}
	if res.Method != MethodBOS {
		t.Errorf("method = %s, want bos (no CHoCH in window)", res.Method)
	}
	if res.Sideways() {
		t.Error("machine-confirmed trend must not report sideways")
	}
}

func TestHTFBiasNeutralOnFlatRange(t *testing.T) {
	candles := mkCandles(market.H4, [][4]float64{
		{100, 100.6, 99.4, 100.1},
		{100.1, 100.5, 99.5, 100.0},
		{100.0, 100.6, 99.4, 100.2},
		{100.2, 100.5, 99.5, 99.9},
		{99.9, 100.6, 99.4, 100.0},
	})

	res := NewAnalyzer(true, 0).Analyze(candles)

	if res.Direction != structure.TrendUnknown {
		t.Errorf("direction = %s, want unknown for a flat range", res.Direction)
	}
	if !res.Sideways() {
		t.Error("flat range must be sideways")
	}
}

func TestHTFBiasDisplacementFallback(t *testing.T) {
	// No swings, no BOS, but last close sits well above the midpoint of
	// the window's range.
	candles := mkCandles(market.H4, [][4]float64{
		{105, 110, 90, 106},
		{106, 108, 104, 107},
		{107, 109, 105, 108},
		{108, 109.5, 106, 109},
		{109, 109.8, 107, 109.5},
	})

	res := NewAnalyzer(true, 0).Analyze(candles)

	if res.Direction != structure.TrendBullish {
		t.Errorf("direction = %s, want bullish via displacement", res.Direction)
	}
	if res.Method != MethodDisplacement {
		t.Errorf("method = %s, want displacement", res.Method)
	}
	if !res.Sideways() {
		t.Error("displacement fallback must still report a sideways formal trend")
	}
}

func TestTrendStrength(t *testing.T) {
	oneWay := mkCandles(market.M15, [][4]float64{
		{100, 101, 99.5, 100.8},
		{100.8, 102, 100.5, 101.6},
		{101.6, 103, 101.3, 102.4},
		{102.4, 104, 102.1, 103.2},
	})
	if s := TrendStrength(oneWay); s < 99 {
		t.Errorf("monotone closes should score ~100, got %.1f", s)
	}

	chop := mkCandles(market.M15, [][4]float64{
		{100, 101, 99, 100.8},
		{100.8, 101.5, 99.5, 100.0},
		{100.0, 101, 99, 100.8},
		{100.8, 101.5, 99.5, 100.0},
	})
	if s := TrendStrength(chop); s > 40 {
		t.Errorf("chop should score low, got %.1f", s)
	}
}

func TestVolatilityRatio(t *testing.T) {
	// Wide early ranges, tight late ranges: recent ATR well below the
	// long-window ATR.
	rows := make([][4]float64, 25)
	for i := range rows {
		if i < 18 {
			rows[i] = [4]float64{100, 104, 96, 100}
		} else {
			rows[i] = [4]float64{100, 100.4, 99.6, 100}
		}
	}
	candles := mkCandles(market.M15, rows)

	ratio := VolatilityRatio(candles, 5, 20)
	if ratio >= 25 {
		t.Errorf("contracting volatility should read below 25%%, got %.1f", ratio)
	}
}

// buySetupITF is an M15 window with a bullish order block at index 2, a
// bullish run, a bearish CHoCH at index 9, a displacement leg at index 10
// producing an FVG, and a final close back inside the resulting zone.
func buySetupITF() []market.Candle {
	return mkCandles(market.M15, [][4]float64{
		{100, 101, 99, 100.5},
		{100.5, 102, 99.8, 101.5},
		{101.5, 104.3, 100.4, 104}, // bullish order block
		{104.6, 106, 104.5, 105.5},
		{105.5, 105.8, 103.8, 104.2},
		{104.2, 107.5, 104, 107}, // bullish BOS
		{107, 107.8, 106.2, 107.4},
		{107.4, 107.5, 105.9, 106.1},
		{106.1, 106.3, 104.9, 105.1},
		{105.1, 105.2, 103.3, 103.5}, // bearish CHoCH
		{103.5, 103.6, 100.7, 100.9}, // displacement leg
		{100.9, 102.5, 100.3, 101.9},
		{101.9, 104.2, 101.8, 103.9}, // back inside the zone
	})
}

func TestSetupZoneDetection(t *testing.T) {
	candles := buySetupITF()
	det := NewSetupDetector(SetupConfig{StrictClose: true})

	zone, reason := det.Detect("XAUUSD", candles, structure.Bullish)
	if zone == nil {
		t.Fatalf("expected a setup zone, got rejection: %s", reason)
	}
	if zone.ChochIndex != 9 {
		t.Errorf("choch index = %d, want 9", zone.ChochIndex)
	}
	if zone.DisplacementIndex != 10 {
		t.Errorf("displacement index = %d, want 10", zone.DisplacementIndex)
	}
	if zone.FVG == nil || zone.OrderBlock == nil {
		t.Fatalf("expected both FVG and order block, got %+v", zone)
	}
	// Intersection of FVG [103.6, 104.9] and OB [100.4, 104.3].
	if zone.Low != 103.6 || zone.High != 104.3 {
		t.Errorf("zone = [%.2f, %.2f], want [103.60, 104.30]", zone.Low, zone.High)
	}
}

func TestSetupZoneRejectsWithoutChoch(t *testing.T) {
	// Pure uptrend: no bearish CHoCH, no pullback leg.
	candles := mkCandles(market.M15, [][4]float64{
		{100, 102, 99, 101},
		{101, 104, 100, 103},
		{103, 106, 102, 105},
		{105, 105.5, 103, 104},
		{104, 108, 103.5, 107},
		{107, 110, 106, 109},
		{109, 109.5, 107, 108},
		{108, 113, 107.5, 112},
		{112, 114, 111, 113},
		{113, 115, 112, 114},
	})

	zone, reason := NewSetupDetector(SetupConfig{StrictClose: true}).Detect("XAUUSD", candles, structure.Bullish)
	if zone != nil {
		t.Fatalf("expected rejection, got zone %+v", zone)
	}
	if reason == "" {
		t.Error("rejection must carry a reason")
	}
}

func TestSetupZoneDeterministic(t *testing.T) {
	candles := buySetupITF()
	det := NewSetupDetector(SetupConfig{StrictClose: true})

	z1, r1 := det.Detect("XAUUSD", candles, structure.Bullish)
	z2, r2 := det.Detect("XAUUSD", candles, structure.Bullish)

	if r1 != r2 {
		t.Fatalf("reasons differ: %q vs %q", r1, r2)
	}
	if z1 == nil || z2 == nil {
		t.Fatal("expected zones from both runs")
	}
	if z1.Low != z2.Low || z1.High != z2.High || z1.ChochIndex != z2.ChochIndex {
		t.Errorf("zones differ: %+v vs %+v", z1, z2)
	}
}

// buySetupM1 is an M1 window inside the zone with a bullish BOS and a
// refined order block at index 6.
func buySetupM1() []market.Candle {
	return mkCandles(market.M1, [][4]float64{
		{104.0, 104.1, 103.9, 104.05},
		{104.05, 104.3, 104.0, 104.25},
		{104.25, 104.35, 104.1, 104.15},
		{104.15, 104.2, 103.9, 103.95},
		{103.95, 104.0, 103.7, 103.75},
		{103.75, 103.85, 103.6, 103.85},
		{103.85, 104.45, 103.65, 104.4}, // order block + bullish BOS
	})
}

func TestEntryPlanRefinedOrderBlock(t *testing.T) {
	itf := buySetupITF()
	zone, reason := NewSetupDetector(SetupConfig{StrictClose: true}).Detect("XAUUSD", itf, structure.Bullish)
	if zone == nil {
		t.Fatalf("setup zone missing: %s", reason)
	}

	planner := NewEntryPlanner(EntryConfig{StrictClose: true, RewardRatio: 3.0})
	plan := planner.Plan("XAUUSD", buySetupM1(), itf, zone, 104.0)

	if !plan.ShouldEnter {
		t.Fatalf("expected entry, reasons: %v", plan.Reasons)
	}
	if !plan.Refined {
		t.Error("entry should be anchored to the M1 order block")
	}
	if plan.Entry != 103.65 {
		t.Errorf("entry = %.2f, want 103.65 (M1 OB low)", plan.Entry)
	}
	if plan.StopLoss >= plan.Entry {
		t.Errorf("buy stop loss %.2f must be below entry %.2f", plan.StopLoss, plan.Entry)
	}
	risk := plan.Entry - plan.StopLoss
	if plan.TakeProfit-plan.Entry < 0.6*3.0*risk {
		t.Errorf("take profit %.2f violates the RR floor (risk %.2f)", plan.TakeProfit, risk)
	}
	if plan.Kind != OrderLimit {
		t.Errorf("kind = %s, want limit (entry below current price)", plan.Kind)
	}
}

func TestEntryPlanRejectsOutsideZone(t *testing.T) {
	itf := buySetupITF()
	zone, _ := NewSetupDetector(SetupConfig{StrictClose: true}).Detect("XAUUSD", itf, structure.Bullish)

	plan := NewEntryPlanner(EntryConfig{StrictClose: true}).Plan("XAUUSD", buySetupM1(), itf, zone, 110.0)
	if plan.ShouldEnter {
		t.Error("price far above the zone must not enter")
	}
}

func TestOrderKindSelection(t *testing.T) {
	p := NewEntryPlanner(EntryConfig{})

	tests := []struct {
		dir     structure.Direction
		entry   float64
		current float64
		want    OrderKind
	}{
		{structure.Bullish, 100.0, 100.01, OrderMarket}, // within 0.05%
		{structure.Bullish, 99.0, 100.0, OrderLimit},    // buy below market
		{structure.Bullish, 101.0, 100.0, OrderStop},    // buy above market
		{structure.Bearish, 101.0, 100.0, OrderLimit},   // sell above market
		{structure.Bearish, 99.0, 100.0, OrderStop},     // sell below market
	}
	for _, tt := range tests {
		if got := p.orderKind(tt.dir, tt.entry, tt.current); got != tt.want {
			t.Errorf("orderKind(%s, %.2f, %.2f) = %s, want %s", tt.dir, tt.entry, tt.current, got, tt.want)
		}
	}
}
