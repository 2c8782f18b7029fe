package signal

import "smc-trading-engine/internal/market"

// adrStats summarises average daily range usage: how much of a typical
// day's travel has already been spent.
type adrStats struct {
	ADR       float64
	UsedToday float64
	UsedPct   float64
	OK        bool
	Score     float64 // signed contribution in [-15, +10]
}

// computeADR derives the average daily range from an H4 window by grouping
// candles per calendar day (UTC) and averaging each day's high-low span.
// The current (last) day is excluded from the average and measured as
// today's usage.
func computeADR(candles []market.Candle) adrStats {
	stats := adrStats{OK: true}
	if len(candles) == 0 {
		return stats
	}

	type dayRange struct {
		high, low float64
	}
	var (
		order []string
		days  = make(map[string]*dayRange)
	)
	for _, c := range candles {
		key := c.StartTime.UTC().Format("2006-01-02")
		d, ok := days[key]
		if !ok {
			d = &dayRange{high: c.High, low: c.Low}
			days[key] = d
			order = append(order, key)
			continue
		}
		if c.High > d.high {
			d.high = c.High
		}
		if c.Low < d.low {
			d.low = c.Low
		}
	}

	if len(order) < 2 {
		// Not enough history to judge; neutral.
		return stats
	}

	sum := 0.0
	for _, key := range order[:len(order)-1] {
		sum += days[key].high - days[key].low
	}
	stats.ADR = sum / float64(len(order)-1)

	today := days[order[len(order)-1]]
	stats.UsedToday = today.high - today.low
	if stats.ADR > 0 {
		stats.UsedPct = stats.UsedToday / stats.ADR * 100
	}

	// Plenty of range left scores positive; an exhausted day negative.
	switch {
	case stats.UsedPct <= 50:
		stats.Score = 10
	case stats.UsedPct <= 70:
		stats.Score = 5
	case stats.UsedPct <= 100:
		stats.Score = -5
	default:
		stats.Score = -15
		stats.OK = false
	}
	return stats
}
