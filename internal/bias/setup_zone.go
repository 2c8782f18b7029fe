package bias

import (
	"fmt"

	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/structure"
	"smc-trading-engine/internal/zones"
)

// SetupZone is the M15 zone price must return to before an entry is
// considered. It is the intersection of the displacement-leg FVG and the
// prior order block when both exist.
type SetupZone struct {
	Direction         structure.Direction // trade direction
	High              float64
	Low               float64
	FVG               *zones.FairValueGap
	OrderBlock        *zones.OrderBlock
	ChochIndex        int
	DisplacementIndex int
	Synthetic         bool
}

// Size returns the zone height.
func (z SetupZone) Size() float64 {
	return z.High - z.Low
}

// InZone reports whether price is within the zone extended by the given
// fraction of its own size on each side.
func (z SetupZone) InZone(price, tolerance float64) bool {
	pad := z.Size() * tolerance
	return price >= z.Low-pad && price <= z.High+pad
}

// SetupConfig tunes the M15 setup-zone detection.
type SetupConfig struct {
	StrictClose        bool
	SwingLookback      int
	AllowBOSSubstitute bool    // relaxed mode: a plain opposite BOS may stand in for the CHoCH
	ZoneTolerance      float64 // fraction of zone size accepted around the edges
	MinWickToBodyRatio float64
}

// SetupDetector finds the M15 setup zone for a directional bias.
type SetupDetector struct {
	cfg SetupConfig
}

// NewSetupDetector creates a setup-zone detector.
func NewSetupDetector(cfg SetupConfig) *SetupDetector {
	if cfg.ZoneTolerance <= 0 {
		cfg.ZoneTolerance = 0.1
	}
	return &SetupDetector{cfg: cfg}
}

// Detect returns the setup zone for the trade direction, or a reason why
// no valid zone exists. The zone is only valid while the last close sits
// inside it (within tolerance).
func (d *SetupDetector) Detect(symbol string, candles []market.Candle, dir structure.Direction) (*SetupZone, string) {
	if len(candles) < 10 {
		return nil, "not enough ITF candles for setup detection"
	}

	swings := structure.NewSwingDetector().Detect(candles)
	bosEvents := structure.NewBOSDetector(d.cfg.StrictClose, d.cfg.SwingLookback).Detect(candles, swings)
	tracker := structure.NewTrendTracker(d.cfg.StrictClose)
	chochs := tracker.Process(candles, swings, bosEvents)

	pullback := opposite(dir)

	// 1. Opposite-direction CHoCH (or MSB) marking the pullback leg.
	chochIndex := -1
	for i := len(chochs) - 1; i >= 0; i-- {
		if trendDirection(chochs[i].ToTrend) == pullback {
			chochIndex = chochs[i].Index
			break
		}
	}
	if chochIndex < 0 && d.cfg.AllowBOSSubstitute {
		for i := len(bosEvents) - 1; i >= 0; i-- {
			if bosEvents[i].Direction == pullback {
				chochIndex = bosEvents[i].Index
				break
			}
		}
	}
	if chochIndex < 0 {
		return nil, fmt.Sprintf("no %s CHoCH on ITF", pullback)
	}

	// 2. Displacement candle after the CHoCH: body > 1.5x previous body,
	// pointing with the pullback (the leg that forms the zone).
	dispIndex := -1
	for i := chochIndex + 1; i < len(candles); i++ {
		c := candles[i]
		prev := candles[i-1]
		pointsWithPullback := (pullback == structure.Bullish && c.Bullish()) ||
			(pullback == structure.Bearish && c.Bearish())
		if pointsWithPullback && prev.Body() > 0 && c.Body() > 1.5*prev.Body() {
			dispIndex = i
			break
		}
	}
	if dispIndex < 0 {
		return nil, "no displacement candle after ITF CHoCH"
	}

	// 3. FVG born during the displacement leg, symbol-size-filtered.
	var legFVG *zones.FairValueGap
	for _, g := range zones.NewFVGDetector(symbol).Detect(candles) {
		if g.Direction == pullback && g.CandleIndices[1] >= dispIndex-1 {
			fv := g
			legFVG = &fv
			break
		}
	}

	// 4. Prior unmitigated order block of the setup's direction.
	obs := zones.NewOrderBlockDetector(d.cfg.MinWickToBodyRatio).Detect(candles)
	legOB := zones.LatestUnmitigated(obs, dir, chochIndex)

	zone := &SetupZone{
		Direction:         dir,
		FVG:               legFVG,
		OrderBlock:        legOB,
		ChochIndex:        chochIndex,
		DisplacementIndex: dispIndex,
	}

	switch {
	case legFVG != nil && legOB != nil:
		lo := maxf(legFVG.Low, legOB.Low)
		hi := minf(legFVG.High, legOB.High)
		if lo <= hi {
			zone.Low, zone.High = lo, hi
		} else {
			// Disjoint: prefer the FVG.
			zone.Low, zone.High = legFVG.Low, legFVG.High
		}
	case legFVG != nil:
		zone.Low, zone.High = legFVG.Low, legFVG.High
	case legOB != nil:
		zone.Low, zone.High = legOB.Low, legOB.High
	default:
		return nil, "no FVG or order block to anchor the setup zone"
	}

	lastClose := candles[len(candles)-1].Close
	if !zone.InZone(lastClose, d.cfg.ZoneTolerance) {
		return nil, fmt.Sprintf("price %.5f outside setup zone [%.5f, %.5f]", lastClose, zone.Low, zone.High)
	}
	return zone, ""
}

// SyntheticZone builds a debug zone around the current price, used by the
// minimal-entry mode instead of real setup detection.
func SyntheticZone(dir structure.Direction, price, width float64) *SetupZone {
	return &SetupZone{
		Direction: dir,
		Low:       price - width/2,
		High:      price + width/2,
		Synthetic: true,
	}
}

func opposite(dir structure.Direction) structure.Direction {
	if dir == structure.Bullish {
		return structure.Bearish
	}
	return structure.Bullish
}

func trendDirection(t structure.Trend) structure.Direction {
	if t == structure.TrendBullish {
		return structure.Bullish
	}
	return structure.Bearish
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
