package bias

import (
	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/structure"
)

// Method records how a bias was derived.
type Method string

const (
	MethodChoch        Method = "choch"
	MethodBOS          Method = "bos"
	MethodDisplacement Method = "displacement"
	MethodNone         Method = "none"
)

// Result is the outcome of a higher-timeframe bias evaluation. Direction
// may come from a fallback method while FormalTrend stays sideways; the
// strict pipeline rejects on FormalTrend, relaxed mode may proceed on
// Direction alone.
type Result struct {
	Direction   structure.Trend
	Method      Method
	FormalTrend structure.Trend // machine-confirmed trend, sideways if unconfirmed
	SwingHigh   float64
	SwingLow    float64
	BullishBOS  int
	BearishBOS  int
	HasChoch    bool
}

// Analyzer derives the HTF bias from structure events.
type Analyzer struct {
	strictClose   bool
	swingLookback int
	// midpointEdge is the fraction of the swing range the last close must
	// clear beyond the midpoint for the displacement fallback.
	midpointEdge float64
}

// NewAnalyzer creates a bias analyzer using 3-candle pivots.
func NewAnalyzer(strictClose bool, swingLookback int) *Analyzer {
	return &Analyzer{
		strictClose:   strictClose,
		swingLookback: swingLookback,
		midpointEdge:  0.1,
	}
}

// Analyze runs the CHoCH state machine over the window and derives the
// bias with its method.
func (a *Analyzer) Analyze(candles []market.Candle) Result {
	res := Result{
		Direction:   structure.TrendUnknown,
		Method:      MethodNone,
		FormalTrend: structure.TrendUnknown,
	}
	if len(candles) < 3 {
		return res
	}

	swings := structure.NewSwingDetector().Detect(candles)
	bosEvents := structure.NewBOSDetector(a.strictClose, a.swingLookback).Detect(candles, swings)
	tracker := structure.NewTrendTracker(a.strictClose)
	chochs := tracker.Process(candles, swings, bosEvents)

	for _, e := range bosEvents {
		if e.Direction == structure.Bullish {
			res.BullishBOS++
		} else {
			res.BearishBOS++
		}
	}
	res.HasChoch = len(chochs) > 0
	res.SwingHigh = market.HighestHigh(candles, len(candles))
	res.SwingLow = market.LowestLow(candles, len(candles))

	// Machine-held bias wins outright.
	if b := tracker.Bias(); b == structure.TrendBullish || b == structure.TrendBearish {
		res.Direction = b
		res.FormalTrend = b
		if res.HasChoch {
			res.Method = MethodChoch
		} else {
			res.Method = MethodBOS
		}
		return res
	}
	res.FormalTrend = structure.TrendUnknown

	// BOS-count fallback.
	switch {
	case res.BullishBOS-res.BearishBOS >= 2:
		res.Direction = structure.TrendBullish
		res.Method = MethodBOS
		return res
	case res.BearishBOS-res.BullishBOS >= 2:
		res.Direction = structure.TrendBearish
		res.Method = MethodBOS
		return res
	}

	// Displacement fallback: last close decisively beyond the midpoint.
	if res.SwingHigh > res.SwingLow {
		mid := (res.SwingHigh + res.SwingLow) / 2
		edge := a.midpointEdge * (res.SwingHigh - res.SwingLow)
		lastClose := candles[len(candles)-1].Close
		if lastClose > mid+edge {
			res.Direction = structure.TrendBullish
			res.Method = MethodDisplacement
			return res
		}
		if lastClose < mid-edge {
			res.Direction = structure.TrendBearish
			res.Method = MethodDisplacement
			return res
		}
	}
	return res
}

// Sideways reports whether the formal trend failed to confirm a direction.
func (r Result) Sideways() bool {
	return r.FormalTrend != structure.TrendBullish && r.FormalTrend != structure.TrendBearish
}
