package structure

import (
	"time"

	"smc-trading-engine/internal/market"
)

// SwingType marks a swing as a local high or low.
type SwingType string

const (
	SwingHigh SwingType = "high"
	SwingLow  SwingType = "low"
)

// SwingPoint represents a local price extremum identified by a pivot rule.
type SwingPoint struct {
	Index     int
	Type      SwingType
	Price     float64
	Timestamp time.Time
}

// SwingMode selects the pivot rule used for swing detection.
type SwingMode string

const (
	// ModeStructural is the 3-consecutive-candle pivot, the default.
	ModeStructural SwingMode = "structural"
	// ModeFractal uses pivotLeft/pivotRight bars on each side.
	ModeFractal SwingMode = "fractal"
)

// SwingDetector finds swing points in a candle sequence.
type SwingDetector struct {
	mode       SwingMode
	pivotLeft  int
	pivotRight int
}

// NewSwingDetector creates a detector using the structural 3-candle pivot.
func NewSwingDetector() *SwingDetector {
	return &SwingDetector{mode: ModeStructural, pivotLeft: 1, pivotRight: 1}
}

// NewFractalSwingDetector creates a detector requiring pivotLeft/pivotRight
// lower highs (or higher lows) on each side of the pivot.
func NewFractalSwingDetector(pivotLeft, pivotRight int) *SwingDetector {
	if pivotLeft < 1 {
		pivotLeft = 1
	}
	if pivotRight < 1 {
		pivotRight = 1
	}
	return &SwingDetector{mode: ModeFractal, pivotLeft: pivotLeft, pivotRight: pivotRight}
}

// Detect returns all swings in the window, sorted by candle index. Strict
// comparisons mean equal-price neighbours never both qualify, so the
// earlier index wins by construction.
func (d *SwingDetector) Detect(candles []market.Candle) []SwingPoint {
	var swings []SwingPoint
	left, right := d.pivotLeft, d.pivotRight

	for i := left; i < len(candles)-right; i++ {
		if d.isPivotHigh(candles, i) {
			swings = append(swings, SwingPoint{
				Index:     i,
				Type:      SwingHigh,
				Price:     candles[i].High,
				Timestamp: candles[i].StartTime,
			})
		}
		if d.isPivotLow(candles, i) {
			swings = append(swings, SwingPoint{
				Index:     i,
				Type:      SwingLow,
				Price:     candles[i].Low,
				Timestamp: candles[i].StartTime,
			})
		}
	}
	return swings
}

func (d *SwingDetector) isPivotHigh(candles []market.Candle, i int) bool {
	h := candles[i].High
	for j := i - d.pivotLeft; j < i; j++ {
		if candles[j].High >= h {
			return false
		}
	}
	for j := i + 1; j <= i+d.pivotRight; j++ {
		if candles[j].High >= h {
			return false
		}
	}
	return true
}

func (d *SwingDetector) isPivotLow(candles []market.Candle, i int) bool {
	l := candles[i].Low
	for j := i - d.pivotLeft; j < i; j++ {
		if candles[j].Low <= l {
			return false
		}
	}
	for j := i + 1; j <= i+d.pivotRight; j++ {
		if candles[j].Low <= l {
			return false
		}
	}
	return true
}

// LastSwing returns the most recent swing of the given type before index,
// or nil if none exists.
func LastSwing(swings []SwingPoint, typ SwingType, before int) *SwingPoint {
	for i := len(swings) - 1; i >= 0; i-- {
		if swings[i].Type == typ && swings[i].Index < before {
			s := swings[i]
			return &s
		}
	}
	return nil
}

// SwingsBetween returns the swings of the given type with index in (from, to).
func SwingsBetween(swings []SwingPoint, typ SwingType, from, to int) []SwingPoint {
	var out []SwingPoint
	for _, s := range swings {
		if s.Type == typ && s.Index > from && s.Index < to {
			out = append(out, s)
		}
	}
	return out
}
