package zones

import (
	"math"
	"time"

	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/structure"
)

// SweepType tags the liquidity pool a sweep violated.
type SweepType string

const (
	SweepEQH     SweepType = "EQH"
	SweepEQL     SweepType = "EQL"
	SweepGeneric SweepType = "sweep"
)

// LiquiditySweep represents a wick-violation of a swing level whose candle
// closed back inside the pre-sweep range.
type LiquiditySweep struct {
	Type        SweepType
	Level       float64
	Timestamp   time.Time
	Confirmed   bool
	Timeframe   market.Timeframe
	CandleIndex int
	Direction   structure.Direction // bullish: swept lows (buy-side setup)
}

// SweepDetector finds liquidity sweeps against prior swing levels.
type SweepDetector struct {
	atrPeriod      int
	minViolation   float64 // fraction of ATR the wick must exceed the level by
	equalTolerance float64 // fraction of ATR within which two levels are "equal"
}

// NewSweepDetector creates a detector with the standard thresholds: the
// wick must violate the level by at least half the local ATR.
func NewSweepDetector(atrPeriod int) *SweepDetector {
	if atrPeriod <= 0 {
		atrPeriod = 14
	}
	return &SweepDetector{
		atrPeriod:      atrPeriod,
		minViolation:   0.5,
		equalTolerance: 0.1,
	}
}

// Detect returns all confirmed sweeps in the window, sorted by candle
// index. A sweep above a level with two or more equal highs within
// tolerance is tagged EQH; the mirror case EQL.
func (d *SweepDetector) Detect(candles []market.Candle, swings []structure.SwingPoint) []LiquiditySweep {
	atr := market.ATR(candles, d.atrPeriod)
	if atr == 0 {
		return nil
	}
	minViolation := d.minViolation * atr
	tolerance := d.equalTolerance * atr

	var sweeps []LiquiditySweep
	for i := 1; i < len(candles); i++ {
		c := candles[i]
		for _, s := range swings {
			if s.Index >= i {
				continue
			}
			switch s.Type {
			case structure.SwingHigh:
				// Wick above the high, close back below it.
				if c.High-s.Price >= minViolation && c.Close < s.Price {
					sweeps = append(sweeps, LiquiditySweep{
						Type:        d.classify(swings, s, tolerance),
						Level:       s.Price,
						Timestamp:   c.StartTime,
						Confirmed:   true,
						Timeframe:   c.Timeframe,
						CandleIndex: i,
						Direction:   structure.Bearish,
					})
				}
			case structure.SwingLow:
				if s.Price-c.Low >= minViolation && c.Close > s.Price {
					sweeps = append(sweeps, LiquiditySweep{
						Type:        d.classify(swings, s, tolerance),
						Level:       s.Price,
						Timestamp:   c.StartTime,
						Confirmed:   true,
						Timeframe:   c.Timeframe,
						CandleIndex: i,
						Direction:   structure.Bullish,
					})
				}
			}
		}
	}
	return sweeps
}

// classify tags the sweep EQH/EQL when at least two swings of the same type
// sit within tolerance of the swept level.
func (d *SweepDetector) classify(swings []structure.SwingPoint, swept structure.SwingPoint, tolerance float64) SweepType {
	equal := 0
	for _, s := range swings {
		if s.Type == swept.Type && math.Abs(s.Price-swept.Price) <= tolerance {
			equal++
		}
	}
	if equal >= 2 {
		if swept.Type == structure.SwingHigh {
			return SweepEQH
		}
		return SweepEQL
	}
	return SweepGeneric
}

// LatestSweep returns the most recent sweep in the setup direction, or nil.
// A bullish setup wants swept lows; a bearish setup swept highs.
func LatestSweep(sweeps []LiquiditySweep, dir structure.Direction) *LiquiditySweep {
	for i := len(sweeps) - 1; i >= 0; i-- {
		if sweeps[i].Direction == dir {
			s := sweeps[i]
			return &s
		}
	}
	return nil
}
