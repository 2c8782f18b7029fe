package zones

import "smc-trading-engine/internal/market"

// Zone is the position of price relative to the midpoint of a swing range.
type Zone string

const (
	ZonePremium  Zone = "premium"
	ZoneDiscount Zone = "discount"
	ZoneNeutral  Zone = "neutral"
)

// PremiumDiscount holds the swing range and midpoint used to classify
// price as premium or discount.
type PremiumDiscount struct {
	SwingHigh float64
	SwingLow  float64
	Fib50     float64
	Current   Zone
}

const (
	// Window sizes for the range lookback. Volatile symbols (XAUUSD, US30)
	// use the shorter ITF window; everything else the HTF window.
	pdWindowVolatile = 25
	pdWindowDefault  = 100
)

// ComputePremiumDiscount classifies price against the fib-50 midpoint of
// the recent swing range. The lookback window is symbol-aware.
func ComputePremiumDiscount(symbol string, candles []market.Candle, price float64) PremiumDiscount {
	window := pdWindowDefault
	if market.Spec(symbol).Volatile {
		window = pdWindowVolatile
	}
	return computePD(candles, window, price)
}

func computePD(candles []market.Candle, window int, price float64) PremiumDiscount {
	pd := PremiumDiscount{Current: ZoneNeutral}
	if len(candles) == 0 {
		return pd
	}
	pd.SwingHigh = market.HighestHigh(candles, window)
	pd.SwingLow = market.LowestLow(candles, window)
	pd.Fib50 = (pd.SwingHigh + pd.SwingLow) / 2

	switch {
	case price > pd.Fib50:
		pd.Current = ZonePremium
	case price < pd.Fib50:
		pd.Current = ZoneDiscount
	}
	return pd
}

// Score returns the signed premium/discount confluence contribution in
// [-10, +15]: full credit for buying discount / selling premium, a penalty
// for the opposite, nothing when neutral.
func (pd PremiumDiscount) Score(buying bool) float64 {
	switch pd.Current {
	case ZoneDiscount:
		if buying {
			return 15
		}
		return -10
	case ZonePremium:
		if buying {
			return -10
		}
		return 15
	default:
		return 0
	}
}
