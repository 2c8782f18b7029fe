package zones

import (
	"time"

	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/structure"
)

// FVGGrade classifies gap size against the symbol's minimum gap.
type FVGGrade string

const (
	GradeWide   FVGGrade = "wide"
	GradeNarrow FVGGrade = "narrow"
	GradeNested FVGGrade = "nested"
)

// FairValueGap represents a three-candle price imbalance where the wicks
// of the outer candles do not overlap.
type FairValueGap struct {
	Direction     structure.Direction
	Grade         FVGGrade
	High          float64
	Low           float64
	Timestamp     time.Time
	Timeframe     market.Timeframe
	Filled        bool
	CandleIndices [3]int
}

// Size returns the gap height in price units.
func (g FairValueGap) Size() float64 {
	return g.High - g.Low
}

// Midpoint returns the centre of the gap.
func (g FairValueGap) Midpoint() float64 {
	return (g.High + g.Low) / 2
}

// Contains reports whether price sits inside the gap.
func (g FairValueGap) Contains(price float64) bool {
	return price >= g.Low && price <= g.High
}

// FVGDetector detects fair value gaps with a symbol-aware minimum size.
type FVGDetector struct {
	minGapSize float64
}

// NewFVGDetector creates a detector for the given symbol, taking the
// minimum gap size from the symbol spec.
func NewFVGDetector(symbol string) *FVGDetector {
	return &FVGDetector{minGapSize: market.Spec(symbol).MinGapSize}
}

// NewFVGDetectorWithMinGap creates a detector with an explicit minimum gap.
func NewFVGDetectorWithMinGap(minGapSize float64) *FVGDetector {
	return &FVGDetector{minGapSize: minGapSize}
}

// Detect scans candle triplets and returns gaps sorted by candle index.
// Fill status is evaluated against the candles following each gap inside
// the window.
func (d *FVGDetector) Detect(candles []market.Candle) []FairValueGap {
	if len(candles) < 3 {
		return nil
	}
	var gaps []FairValueGap

	for i := 1; i < len(candles)-1; i++ {
		c1 := candles[i-1]
		c3 := candles[i+1]

		// Bullish gap: first candle's high below third candle's low.
		if c3.Low-c1.High >= d.minGapSize {
			g := FairValueGap{
				Direction:     structure.Bullish,
				High:          c3.Low,
				Low:           c1.High,
				Timestamp:     candles[i].StartTime,
				Timeframe:     candles[i].Timeframe,
				CandleIndices: [3]int{i - 1, i, i + 1},
			}
			g.Grade = d.grade(g.Size())
			g.Filled = d.isFilled(g, candles[i+2:])
			gaps = append(gaps, g)
		}

		// Bearish gap: first candle's low above third candle's high.
		if c1.Low-c3.High >= d.minGapSize {
			g := FairValueGap{
				Direction:     structure.Bearish,
				High:          c1.Low,
				Low:           c3.High,
				Timestamp:     candles[i].StartTime,
				Timeframe:     candles[i].Timeframe,
				CandleIndices: [3]int{i - 1, i, i + 1},
			}
			g.Grade = d.grade(g.Size())
			g.Filled = d.isFilled(g, candles[i+2:])
			gaps = append(gaps, g)
		}
	}
	return gaps
}

func (d *FVGDetector) grade(size float64) FVGGrade {
	switch {
	case size > 3*d.minGapSize:
		return GradeWide
	case size > 1.5*d.minGapSize:
		return GradeNarrow
	default:
		return GradeNested
	}
}

// isFilled reports whether a later candle traded through the whole gap.
func (d *FVGDetector) isFilled(g FairValueGap, later []market.Candle) bool {
	for _, c := range later {
		if g.Direction == structure.Bullish && c.Low <= g.Low {
			return true
		}
		if g.Direction == structure.Bearish && c.High >= g.High {
			return true
		}
	}
	return false
}

// Unfilled returns only the gaps that have not been filled.
func Unfilled(gaps []FairValueGap) []FairValueGap {
	var out []FairValueGap
	for _, g := range gaps {
		if !g.Filled {
			out = append(out, g)
		}
	}
	return out
}
