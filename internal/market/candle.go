package market

import (
	"math"
	"time"
)

// Timeframe identifies a candle aggregation interval.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
)

// Duration returns the wall-clock span of one candle on this timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case M1:
		return time.Minute
	case M5:
		return 5 * time.Minute
	case M15:
		return 15 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	default:
		return time.Minute
	}
}

// Candle represents one OHLCV bar. Candles are immutable once stored.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool {
	return c.Close < c.Open
}

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// Range returns the high-to-low distance.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// BodyPercent returns the body as a percentage of the full range.
func (c Candle) BodyPercent() float64 {
	r := c.Range()
	if r == 0 {
		return 0
	}
	return c.Body() / r * 100
}

// UpperWick returns the distance from the body top to the high.
func (c Candle) UpperWick() float64 {
	return c.High - math.Max(c.Open, c.Close)
}

// LowerWick returns the distance from the body bottom to the low.
func (c Candle) LowerWick() float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

// TrueRange computes the true range of the candle relative to the previous close.
func (c Candle) TrueRange(prevClose float64) float64 {
	tr := c.Range()
	if prevClose > 0 {
		tr = math.Max(tr, math.Abs(c.High-prevClose))
		tr = math.Max(tr, math.Abs(c.Low-prevClose))
	}
	return tr
}

// ATR computes the average true range over the last period candles.
// Returns 0 when there is not enough data.
func ATR(candles []Candle, period int) float64 {
	if period <= 0 || len(candles) < 2 {
		return 0
	}
	start := len(candles) - period
	if start < 1 {
		start = 1
	}
	sum := 0.0
	n := 0
	for i := start; i < len(candles); i++ {
		sum += candles[i].TrueRange(candles[i-1].Close)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// HighestHigh returns the maximum high over the last lookback candles.
func HighestHigh(candles []Candle, lookback int) float64 {
	if len(candles) == 0 {
		return 0
	}
	start := len(candles) - lookback
	if start < 0 {
		start = 0
	}
	hh := candles[start].High
	for _, c := range candles[start+1:] {
		if c.High > hh {
			hh = c.High
		}
	}
	return hh
}

// LowestLow returns the minimum low over the last lookback candles.
func LowestLow(candles []Candle, lookback int) float64 {
	if len(candles) == 0 {
		return 0
	}
	start := len(candles) - lookback
	if start < 0 {
		start = 0
	}
	ll := candles[start].Low
	for _, c := range candles[start+1:] {
		if c.Low < ll {
			ll = c.Low
		}
	}
	return ll
}

// MeanVolume returns the average volume of candles[from:to].
func MeanVolume(candles []Candle, from, to int) float64 {
	if from < 0 {
		from = 0
	}
	if to > len(candles) {
		to = len(candles)
	}
	if from >= to {
		return 0
	}
	sum := 0.0
	for _, c := range candles[from:to] {
		sum += c.Volume
	}
	return sum / float64(to-from)
}
