package bias

import (
	"math"

	"smc-trading-engine/internal/market"
)

// TrendStrength measures directional efficiency over the window as a
// percentage: the net close-to-close move divided by the sum of absolute
// close-to-close moves. 100 means every candle moved the same way, 0 a
// perfect chop.
func TrendStrength(candles []market.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	net := candles[len(candles)-1].Close - candles[0].Close
	total := 0.0
	for i := 1; i < len(candles); i++ {
		total += math.Abs(candles[i].Close - candles[i-1].Close)
	}
	if total == 0 {
		return 0
	}
	return math.Abs(net) / total * 100
}

// VolatilityRatio compares recent volatility against the longer window:
// ATR(shortPeriod) over ATR(longPeriod), as a percentage. A reading below
// 25 means the market has gone quiet relative to its own recent history.
func VolatilityRatio(candles []market.Candle, shortPeriod, longPeriod int) float64 {
	if shortPeriod <= 0 {
		shortPeriod = 5
	}
	if longPeriod <= 0 {
		longPeriod = 20
	}
	long := market.ATR(candles, longPeriod)
	if long == 0 {
		return 0
	}
	return market.ATR(candles, shortPeriod) / long * 100
}
