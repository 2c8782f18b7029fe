package structure

import "smc-trading-engine/internal/market"

// Trend is the bias held by the CHoCH state machine.
type Trend string

const (
	TrendUnknown Trend = "unknown"
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
)

// ChochEvent represents a change of character: a BOS opposite to the held
// bias that broke the bias's anchor swing. IsMSB marks the subset that
// broke a higher-order structural level.
type ChochEvent struct {
	Index            int
	FromTrend        Trend
	ToTrend          Trend
	BrokenSwingIndex int
	BrokenSwingType  SwingType
	Level            float64
	BOSIndex         int
	IsMSB            bool
}

// TrendTracker runs the CHoCH state machine over BOS events. The machine
// never looks into the future; re-running it over the same window yields
// identical events in identical order.
type TrendTracker struct {
	strictClose bool

	bias               Trend
	anchor             *SwingPoint
	lastConfirmedHigh  *SwingPoint
	lastConfirmedLow   *SwingPoint
	structuralDetector *SwingDetector
}

// NewTrendTracker creates a tracker with bias unknown.
func NewTrendTracker(strictClose bool) *TrendTracker {
	return &TrendTracker{
		strictClose:        strictClose,
		bias:               TrendUnknown,
		structuralDetector: NewSwingDetector(),
	}
}

// Bias returns the current bias of the machine.
func (t *TrendTracker) Bias() Trend {
	return t.bias
}

// Anchor returns the swing an opposite BOS must break to flip the bias.
func (t *TrendTracker) Anchor() *SwingPoint {
	return t.anchor
}

// Process consumes BOS events in index order and returns the CHoCH events
// they produce.
func (t *TrendTracker) Process(candles []market.Candle, swings []SwingPoint, bosEvents []BOSEvent) []ChochEvent {
	var chochs []ChochEvent

	for _, bos := range bosEvents {
		bosTrend := directionTrend(bos.Direction)

		switch {
		case t.bias == TrendUnknown:
			t.bias = bosTrend
			t.anchor = LastSwing(swings, anchorType(t.bias), bos.Index)
			t.confirm(swings, bos)

		case t.bias == bosTrend:
			t.confirm(swings, bos)

		default:
			// Opposite BOS: flips the bias only if it breaks the anchor.
			if t.anchor != nil && t.breaksAnchor(candles, bos) {
				ev := ChochEvent{
					Index:            bos.Index,
					FromTrend:        t.bias,
					ToTrend:          bosTrend,
					BrokenSwingIndex: t.anchor.Index,
					BrokenSwingType:  t.anchor.Type,
					Level:            t.anchor.Price,
					BOSIndex:         bos.Index,
				}
				ev.IsMSB = t.isMajorBreak(candles, swings, ev)
				chochs = append(chochs, ev)

				t.bias = bosTrend
				t.anchor = t.anchorAfterFlip(swings, bos.Index)
			}
			t.confirm(swings, bos)
		}
	}
	return chochs
}

// anchorType is the swing side an opposite BOS must break to flip the bias:
// a bullish bias is anchored at its protected low, a bearish bias at its
// protected high.
func anchorType(bias Trend) SwingType {
	if bias == TrendBullish {
		return SwingLow
	}
	return SwingHigh
}

func directionTrend(d Direction) Trend {
	if d == Bullish {
		return TrendBullish
	}
	return TrendBearish
}

// confirm records the broken swing as the last confirmed swing on its side.
func (t *TrendTracker) confirm(swings []SwingPoint, bos BOSEvent) {
	broken := SwingPoint{
		Index: bos.BrokenSwingIndex,
		Type:  bos.BrokenSwingType,
		Price: bos.Level,
	}
	if bos.BrokenSwingType == SwingHigh {
		t.lastConfirmedHigh = &broken
	} else {
		t.lastConfirmedLow = &broken
	}
}

// breaksAnchor checks whether the BOS candle trades through the anchor.
func (t *TrendTracker) breaksAnchor(candles []market.Candle, bos BOSEvent) bool {
	if bos.Index >= len(candles) {
		return false
	}
	c := candles[bos.Index]
	if bos.Direction == Bullish {
		price := c.High
		if t.strictClose {
			price = c.Close
		}
		return t.anchor.Type == SwingHigh && price > t.anchor.Price
	}
	price := c.Low
	if t.strictClose {
		price = c.Close
	}
	return t.anchor.Type == SwingLow && price < t.anchor.Price
}

// anchorAfterFlip picks the new anchor after a CHoCH: the most recent
// confirmed swing on the new bias's protected side, falling back to the
// most recent raw swing when nothing on that side has been confirmed yet.
func (t *TrendTracker) anchorAfterFlip(swings []SwingPoint, chochIndex int) *SwingPoint {
	want := anchorType(t.bias)
	var confirmed *SwingPoint
	if want == SwingHigh {
		confirmed = t.lastConfirmedHigh
	} else {
		confirmed = t.lastConfirmedLow
	}
	if confirmed != nil && confirmed.Index < chochIndex {
		return confirmed
	}
	return LastSwing(swings, want, chochIndex)
}

// isMajorBreak relabels a CHoCH as MSB when the broken swing is a
// structural 3-candle pivot that also bounds a range holding at least two
// opposing swings.
func (t *TrendTracker) isMajorBreak(candles []market.Candle, swings []SwingPoint, ev ChochEvent) bool {
	i := ev.BrokenSwingIndex
	if i < 1 || i >= len(candles)-1 {
		return false
	}
	if ev.BrokenSwingType == SwingHigh {
		if !t.structuralDetector.isPivotHigh(candles, i) {
			return false
		}
	} else if !t.structuralDetector.isPivotLow(candles, i) {
		return false
	}

	opposing := SwingLow
	if ev.BrokenSwingType == SwingLow {
		opposing = SwingHigh
	}
	return len(SwingsBetween(swings, opposing, i, ev.Index)) >= 2
}
