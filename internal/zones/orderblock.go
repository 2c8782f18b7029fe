package zones

import (
	"time"

	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/structure"
)

// OrderBlock represents the last opposing candle preceding a directional
// impulse: a demand zone (bullish) or supply zone (bearish).
type OrderBlock struct {
	Type            structure.Direction
	High            float64
	Low             float64
	Timestamp       time.Time
	Timeframe       market.Timeframe
	Mitigated       bool
	WickToBodyRatio float64
	VolumeImbalance bool
	CandleIndex     int
}

// Contains reports whether a price sits inside the block.
func (ob OrderBlock) Contains(price float64) bool {
	return price >= ob.Low && price <= ob.High
}

// OrderBlockDetector finds order blocks in a candle window.
type OrderBlockDetector struct {
	minWickToBodyRatio float64
	volumeLookback     int
	volumeMultiple     float64
}

// NewOrderBlockDetector creates a detector. minWickToBodyRatio is the
// minimum rejection-wick size relative to the body (default 0.3).
func NewOrderBlockDetector(minWickToBodyRatio float64) *OrderBlockDetector {
	if minWickToBodyRatio <= 0 {
		minWickToBodyRatio = 0.3
	}
	return &OrderBlockDetector{
		minWickToBodyRatio: minWickToBodyRatio,
		volumeLookback:     10,
		volumeMultiple:     1.5,
	}
}

// Detect scans candles from newest backward and returns order blocks sorted
// newest first. Mitigation is evaluated against the candles that follow
// each block inside the same window.
func (d *OrderBlockDetector) Detect(candles []market.Candle) []OrderBlock {
	var blocks []OrderBlock

	for i := len(candles) - 1; i >= 1; i-- {
		c := candles[i]
		prev := candles[i-1]
		body := c.Body()
		if body == 0 {
			continue
		}

		var ob *OrderBlock
		if c.Bullish() && c.LowerWick()/body >= d.minWickToBodyRatio && c.Close > prev.High {
			ob = &OrderBlock{
				Type:            structure.Bullish,
				High:            c.High,
				Low:             c.Low,
				Timestamp:       c.StartTime,
				Timeframe:       c.Timeframe,
				WickToBodyRatio: c.LowerWick() / body,
				CandleIndex:     i,
			}
		} else if c.Bearish() && c.UpperWick()/body >= d.minWickToBodyRatio && c.Close < prev.Low {
			ob = &OrderBlock{
				Type:            structure.Bearish,
				High:            c.High,
				Low:             c.Low,
				Timestamp:       c.StartTime,
				Timeframe:       c.Timeframe,
				WickToBodyRatio: c.UpperWick() / body,
				CandleIndex:     i,
			}
		}
		if ob == nil {
			continue
		}

		ob.VolumeImbalance = c.Volume > d.volumeMultiple*market.MeanVolume(candles, i-d.volumeLookback, i)
		ob.Mitigated = d.isMitigated(*ob, candles[i+1:])
		blocks = append(blocks, *ob)
	}
	return blocks
}

// isMitigated reports whether a later close pierced the opposite edge of
// the block.
func (d *OrderBlockDetector) isMitigated(ob OrderBlock, later []market.Candle) bool {
	for _, c := range later {
		if ob.Type == structure.Bullish && c.Close < ob.Low {
			return true
		}
		if ob.Type == structure.Bearish && c.Close > ob.High {
			return true
		}
	}
	return false
}

// LatestUnmitigated returns the newest unmitigated block of the given
// direction with candle index strictly before beforeIndex, or nil.
func LatestUnmitigated(blocks []OrderBlock, dir structure.Direction, beforeIndex int) *OrderBlock {
	for _, ob := range blocks {
		if ob.Type == dir && !ob.Mitigated && (beforeIndex < 0 || ob.CandleIndex < beforeIndex) {
			b := ob
			return &b
		}
	}
	return nil
}
