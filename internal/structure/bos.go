package structure

import "smc-trading-engine/internal/market"

// Direction is the side of a structural break.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// BOSEvent represents a break of structure: a candle closing (or wicking,
// in non-strict mode) beyond a prior swing level.
type BOSEvent struct {
	Index            int
	Direction        Direction
	BrokenSwingIndex int
	BrokenSwingType  SwingType
	Level            float64
	StrictClose      bool
}

// BOSDetector detects breaks of structure against recent swings.
type BOSDetector struct {
	strictClose   bool
	swingLookback int // max candle distance between swing and break
}

// NewBOSDetector creates a BOS detector. strictClose requires the candle
// close (not just the wick) to break the swing level. swingLookback bounds
// how far back a broken swing may sit; <=0 means unbounded.
func NewBOSDetector(strictClose bool, swingLookback int) *BOSDetector {
	return &BOSDetector{strictClose: strictClose, swingLookback: swingLookback}
}

// Detect scans every candle against qualifying swings and returns BOS
// events sorted by candle index. At most one BOS is recorded per candle;
// when several swings break at once the most recent one wins.
func (d *BOSDetector) Detect(candles []market.Candle, swings []SwingPoint) []BOSEvent {
	var events []BOSEvent

	for i := 1; i < len(candles); i++ {
		bullBreak := d.breakPrice(candles[i], Bullish)
		bearBreak := d.breakPrice(candles[i], Bearish)

		var best *BOSEvent
		for _, s := range swings {
			if s.Index >= i {
				continue
			}
			if d.swingLookback > 0 && i-s.Index > d.swingLookback {
				continue
			}
			var dir Direction
			switch {
			case s.Type == SwingHigh && bullBreak > s.Price:
				dir = Bullish
			case s.Type == SwingLow && bearBreak < s.Price:
				dir = Bearish
			default:
				continue
			}
			if best == nil || s.Index > best.BrokenSwingIndex {
				best = &BOSEvent{
					Index:            i,
					Direction:        dir,
					BrokenSwingIndex: s.Index,
					BrokenSwingType:  s.Type,
					Level:            s.Price,
					StrictClose:      d.strictClose,
				}
			}
		}
		if best != nil {
			events = append(events, *best)
		}
	}
	return events
}

// breakPrice returns the price the candle offers for a break in the given
// direction under the detector's close mode.
func (d *BOSDetector) breakPrice(c market.Candle, dir Direction) float64 {
	if d.strictClose {
		return c.Close
	}
	if dir == Bullish {
		return c.High
	}
	return c.Low
}
