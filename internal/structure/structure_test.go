package structure

import (
	"reflect"
	"testing"
	"time"

	"smc-trading-engine/internal/market"
)

// mkCandles builds a candle sequence from OHLC rows.
func mkCandles(rows [][4]float64) []market.Candle {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, len(rows))
	for i, r := range rows {
		candles[i] = market.Candle{
			Symbol:    "XAUUSD",
			Timeframe: market.M15,
			StartTime: base.Add(time.Duration(i) * 15 * time.Minute),
			EndTime:   base.Add(time.Duration(i+1) * 15 * time.Minute),
			Open:      r[0],
			High:      r[1],
			Low:       r[2],
			Close:     r[3],
			Volume:    100,
		}
	}
	return candles
}

func TestDetectStructuralSwings(t *testing.T) {
	// Pivot high at index 2 (high 110), pivot low at index 4 (low 98).
	candles := mkCandles([][4]float64{
		{100, 104, 99, 103},
		{103, 107, 102, 106},
		{106, 110, 105, 108}, // swing high
		{108, 109, 101, 102},
		{102, 103, 98, 100}, // swing low
		{100, 105, 99, 104},
		{104, 106, 103, 105},
	})

	swings := NewSwingDetector().Detect(candles)

	if len(swings) != 2 {
		t.Fatalf("expected 2 swings, got %d: %+v", len(swings), swings)
	}
	if swings[0].Type != SwingHigh || swings[0].Index != 2 || swings[0].Price != 110 {
		t.Errorf("unexpected swing high: %+v", swings[0])
	}
	if swings[1].Type != SwingLow || swings[1].Index != 4 || swings[1].Price != 98 {
		t.Errorf("unexpected swing low: %+v", swings[1])
	}
}

func TestSwingPriceMatchesCandle(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 102, 99, 101},
		{101, 108, 100, 107},
		{107, 107.5, 103, 104},
		{104, 105, 96, 97},
		{97, 100, 95, 99},
	})

	for _, s := range NewSwingDetector().Detect(candles) {
		switch s.Type {
		case SwingHigh:
			if s.Price != candles[s.Index].High {
				t.Errorf("swing high price %.2f != candle high %.2f", s.Price, candles[s.Index].High)
			}
		case SwingLow:
			if s.Price != candles[s.Index].Low {
				t.Errorf("swing low price %.2f != candle low %.2f", s.Price, candles[s.Index].Low)
			}
		}
	}
}

func TestFractalSwingsRequireWiderPivot(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 104, 99, 103},
		{103, 107, 102, 106},
		{106, 110, 105, 108},
		{108, 109, 104, 105},
		{105, 106, 103, 104},
		{104, 105, 102, 103},
		{103, 104, 101, 102},
	})

	structural := NewSwingDetector().Detect(candles)
	fractal := NewFractalSwingDetector(2, 2).Detect(candles)

	if len(fractal) > len(structural) {
		t.Errorf("fractal mode found more swings (%d) than structural (%d)", len(fractal), len(structural))
	}
	for _, s := range fractal {
		if s.Index == 2 && s.Type == SwingHigh {
			return
		}
	}
	t.Error("expected fractal swing high at index 2")
}

func TestBOSStrictCloseVsWick(t *testing.T) {
	// Swing high at index 2 price 110. Candle 5 wicks to 111 but closes 109.
	candles := mkCandles([][4]float64{
		{100, 104, 99, 103},
		{103, 107, 102, 106},
		{106, 110, 105, 108},
		{108, 109, 101, 102},
		{102, 103, 98, 100},
		{100, 111, 99, 109},
	})
	swings := NewSwingDetector().Detect(candles)

	strict := NewBOSDetector(true, 0).Detect(candles, swings)
	for _, e := range strict {
		if e.Index == 5 && e.Direction == Bullish {
			t.Error("strict-close BOS should not fire on a wick-only break")
		}
	}

	loose := NewBOSDetector(false, 0).Detect(candles, swings)
	found := false
	for _, e := range loose {
		if e.Index == 5 && e.Direction == Bullish && e.Level == 110 {
			found = true
		}
	}
	if !found {
		t.Errorf("non-strict BOS at index 5 not found: %+v", loose)
	}
}

func TestBOSOnePerCandleKeepsMostRecentSwing(t *testing.T) {
	// Two swing highs (index 2 at 106, index 6 at 108), candle 9 closes
	// above both. One event, broken swing must be index 6.
	candles := mkCandles([][4]float64{
		{100, 102, 99, 101},
		{101, 104, 100, 103},
		{103, 106, 102, 104}, // swing high 106
		{104, 105, 101, 102},
		{102, 103, 100, 101},
		{101, 105, 100, 104},
		{104, 108, 103, 106}, // swing high 108
		{106, 107, 102, 103},
		{103, 104, 101, 102},
		{102, 112, 101, 111}, // breaks both
	})
	swings := NewSwingDetector().Detect(candles)
	events := NewBOSDetector(true, 0).Detect(candles, swings)

	var at9 []BOSEvent
	for _, e := range events {
		if e.Index == 9 {
			at9 = append(at9, e)
		}
	}
	if len(at9) != 1 {
		t.Fatalf("expected exactly 1 BOS at candle 9, got %d", len(at9))
	}
	if at9[0].BrokenSwingIndex != 6 {
		t.Errorf("expected broken swing index 6, got %d", at9[0].BrokenSwingIndex)
	}
}

func TestBOSSwingLookback(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 102, 99, 101},
		{101, 106, 100, 104}, // swing high 106
		{104, 105, 101, 102},
		{102, 103, 100, 101},
		{101, 102, 99, 100},
		{100, 101, 98, 99},
		{99, 100, 97, 98},
		{98, 112, 97, 111}, // breaks, but swing is 6 candles back
	})
	swings := NewSwingDetector().Detect(candles)

	if events := NewBOSDetector(true, 3).Detect(candles, swings); len(events) != 0 {
		t.Errorf("lookback 3 should exclude a 6-candle-old swing, got %+v", events)
	}
	if events := NewBOSDetector(true, 10).Detect(candles, swings); len(events) == 0 {
		t.Error("lookback 10 should include the swing break")
	}
}

// trendReversalCandles builds an uptrend that breaks down through its
// protected low: swing low at index 4 is the bullish anchor, candle 10
// closes below it.
func trendReversalCandles() []market.Candle {
	return mkCandles([][4]float64{
		{100, 102, 99, 101},
		{101, 105, 100, 104},
		{104, 108, 103, 107}, // swing high 108
		{107, 107.5, 104, 105},
		{105, 106, 102, 103}, // swing low 102
		{103, 111, 102.5, 110},
		{110, 114, 109, 113}, // swing high 114
		{113, 113.5, 108, 109},
		{109, 110, 106, 107},
		{107, 108, 103, 104},
		{104, 105, 99, 100}, // closes below anchor low 102
	})
}

func TestChochFiresOnAnchorBreak(t *testing.T) {
	candles := trendReversalCandles()
	swings := NewSwingDetector().Detect(candles)
	bos := NewBOSDetector(true, 0).Detect(candles, swings)

	tracker := NewTrendTracker(true)
	chochs := tracker.Process(candles, swings, bos)

	if len(chochs) == 0 {
		t.Fatal("expected a CHoCH event")
	}
	ev := chochs[0]
	if ev.FromTrend != TrendBullish || ev.ToTrend != TrendBearish {
		t.Errorf("expected bullish->bearish CHoCH, got %s->%s", ev.FromTrend, ev.ToTrend)
	}
	if tracker.Bias() != TrendBearish {
		t.Errorf("tracker bias after CHoCH = %s, want bearish", tracker.Bias())
	}
}

func TestTrendTrackerNoFlipWithoutAnchorBreak(t *testing.T) {
	// Pure uptrend: higher highs broken repeatedly, lows never violated.
	candles := mkCandles([][4]float64{
		{100, 102, 99, 101},
		{101, 104, 100, 103},
		{103, 106, 102, 105}, // swing high
		{105, 105.5, 103, 104},
		{104, 108, 103.5, 107},
		{107, 110, 106, 109}, // swing high
		{109, 109.5, 107, 108},
		{108, 113, 107.5, 112},
	})
	swings := NewSwingDetector().Detect(candles)
	bos := NewBOSDetector(true, 0).Detect(candles, swings)

	tracker := NewTrendTracker(true)
	chochs := tracker.Process(candles, swings, bos)

	if len(chochs) != 0 {
		t.Errorf("uptrend should produce no CHoCH, got %+v", chochs)
	}
	if tracker.Bias() != TrendBullish {
		t.Errorf("bias = %s, want bullish", tracker.Bias())
	}
}

func TestProcessIsDeterministic(t *testing.T) {
	candles := trendReversalCandles()
	swings := NewSwingDetector().Detect(candles)
	bos := NewBOSDetector(true, 0).Detect(candles, swings)

	first := NewTrendTracker(true).Process(candles, swings, bos)
	second := NewTrendTracker(true).Process(candles, swings, bos)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-running the state machine produced different events:\n%+v\n%+v", first, second)
	}
}

func BenchmarkDetectSwings(b *testing.B) {
	rows := make([][4]float64, 1000)
	for i := range rows {
		p := float64(100 + i%10)
		rows[i] = [4]float64{p, p + 2, p - 2, p + 1}
	}
	candles := mkCandles(rows)
	detector := NewSwingDetector()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.Detect(candles)
	}
}
