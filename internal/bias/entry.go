package bias

import (
	"fmt"
	"math"

	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/structure"
	"smc-trading-engine/internal/zones"
)

// OrderKind is how the entry should be worked at the broker.
type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
	OrderStop   OrderKind = "stop"
)

// EntryPlan is the refined M1 execution decision: whether to enter and at
// what levels.
type EntryPlan struct {
	ShouldEnter bool
	Direction   structure.Direction
	Entry       float64
	StopLoss    float64
	TakeProfit  float64
	Kind        OrderKind
	Refined     bool // true when an M1 order block anchored the entry
	LocalChoch  bool
	Reasons     []string
}

// EntryConfig tunes the M1 entry refinement.
type EntryConfig struct {
	StrictClose   bool
	SwingLookback int
	RewardRatio   float64 // configured RR, default 3.0
	ZoneTolerance float64
	// MarketThreshold is the relative distance to current price under
	// which the order goes out at market (default 0.05%).
	MarketThreshold float64
	// SLBufferOverride replaces the symbol's stop-loss buffer when > 0.
	SLBufferOverride float64
	// RetracementMinPct requires the entry to sit at least this deep into
	// the pullback leg (deep discount for buys, deep premium for sells).
	// Zero disables the filter.
	RetracementMinPct  float64
	MinWickToBodyRatio float64
	RequireLocalBOS    bool
}

// EntryPlanner computes the M1 entry for a validated setup zone.
type EntryPlanner struct {
	cfg EntryConfig
}

// NewEntryPlanner creates an entry planner.
func NewEntryPlanner(cfg EntryConfig) *EntryPlanner {
	if cfg.RewardRatio <= 0 {
		cfg.RewardRatio = 3.0
	}
	if cfg.ZoneTolerance <= 0 {
		cfg.ZoneTolerance = 0.1
	}
	if cfg.MarketThreshold <= 0 {
		cfg.MarketThreshold = 0.0005
	}
	return &EntryPlanner{cfg: cfg}
}

// Plan evaluates the M1 window against the setup zone. itfCandles and
// itfSwings are the M15 context used to anchor the stop loss.
func (p *EntryPlanner) Plan(
	symbol string,
	m1Candles []market.Candle,
	itfCandles []market.Candle,
	zone *SetupZone,
	currentPrice float64,
) EntryPlan {
	plan := EntryPlan{Direction: zone.Direction}

	// (a) Price must be inside the zone.
	if !zone.InZone(currentPrice, p.cfg.ZoneTolerance) {
		plan.Reasons = append(plan.Reasons, "price not in setup zone")
		return plan
	}

	// (b) Local CHoCH (preferred) or same-direction BOS on M1.
	swings := structure.NewSwingDetector().Detect(m1Candles)
	bosEvents := structure.NewBOSDetector(p.cfg.StrictClose, p.cfg.SwingLookback).Detect(m1Candles, swings)
	tracker := structure.NewTrendTracker(p.cfg.StrictClose)
	chochs := tracker.Process(m1Candles, swings, bosEvents)

	for _, ev := range chochs {
		if trendDirection(ev.ToTrend) == zone.Direction {
			plan.LocalChoch = true
		}
	}
	localBOS := false
	for _, ev := range bosEvents {
		if ev.Direction == zone.Direction {
			localBOS = true
		}
	}
	if !plan.LocalChoch && !localBOS {
		plan.Reasons = append(plan.Reasons, "no M1 CHoCH or BOS in trade direction")
		return plan
	}
	if p.cfg.RequireLocalBOS && !localBOS {
		plan.Reasons = append(plan.Reasons, "M1 BOS required but missing")
		return plan
	}

	// (c) Refined M1 order block in the trade direction; entry cascades
	// OB edge -> FVG midpoint -> zone midpoint.
	obs := zones.NewOrderBlockDetector(p.cfg.MinWickToBodyRatio).Detect(m1Candles)
	m1OB := zones.LatestUnmitigated(obs, zone.Direction, -1)

	switch {
	case m1OB != nil:
		if zone.Direction == structure.Bullish {
			plan.Entry = m1OB.Low
		} else {
			plan.Entry = m1OB.High
		}
		plan.Refined = true
		plan.Reasons = append(plan.Reasons, "entry anchored to M1 order block")
	default:
		var m1FVG *zones.FairValueGap
		for _, g := range zones.Unfilled(zones.NewFVGDetector(symbol).Detect(m1Candles)) {
			if g.Direction == zone.Direction {
				fv := g
				m1FVG = &fv
			}
		}
		if m1FVG != nil {
			plan.Entry = m1FVG.Midpoint()
			plan.Reasons = append(plan.Reasons, "entry at M1 FVG midpoint")
		} else {
			plan.Entry = (zone.High + zone.Low) / 2
			plan.Reasons = append(plan.Reasons, "entry at setup zone midpoint")
		}
	}

	// Retracement depth filter.
	if p.cfg.RetracementMinPct > 0 && zone.Size() > 0 {
		var depth float64
		if zone.Direction == structure.Bullish {
			depth = (zone.High - plan.Entry) / zone.Size() * 100
		} else {
			depth = (plan.Entry - zone.Low) / zone.Size() * 100
		}
		if depth < p.cfg.RetracementMinPct {
			plan.Reasons = append(plan.Reasons,
				fmt.Sprintf("entry retracement %.0f%% below required %.0f%%", depth, p.cfg.RetracementMinPct))
			return plan
		}
	}

	// Stop loss anchored to ITF structure.
	buffer := p.slBuffer(symbol)
	plan.StopLoss = p.stopLoss(itfCandles, zone, plan.Entry, buffer)
	if zone.Direction == structure.Bullish && plan.StopLoss >= plan.Entry-buffer {
		plan.Reasons = append(plan.Reasons, "no valid stop below entry")
		return plan
	}
	if zone.Direction == structure.Bearish && plan.StopLoss <= plan.Entry+buffer {
		plan.Reasons = append(plan.Reasons, "no valid stop above entry")
		return plan
	}

	// Take profit from risk multiple, optionally snapped to structure.
	plan.TakeProfit = p.takeProfit(itfCandles, zone.Direction, plan.Entry, plan.StopLoss)

	// Market vs pending order.
	plan.Kind = p.orderKind(zone.Direction, plan.Entry, currentPrice)
	plan.ShouldEnter = true
	return plan
}

func (p *EntryPlanner) slBuffer(symbol string) float64 {
	if p.cfg.SLBufferOverride > 0 {
		return p.cfg.SLBufferOverride
	}
	return market.Spec(symbol).SLBuffer
}

// stopLoss anchors to the nearest ITF structural swing on the protective
// side of entry, falling back to the zone edge.
func (p *EntryPlanner) stopLoss(itfCandles []market.Candle, zone *SetupZone, entry, buffer float64) float64 {
	swings := structure.NewSwingDetector().Detect(itfCandles)

	if zone.Direction == structure.Bullish {
		best := math.Inf(-1)
		for _, s := range swings {
			if s.Type == structure.SwingLow && s.Price < entry && s.Price > best {
				best = s.Price
			}
		}
		if !math.IsInf(best, -1) {
			return best - buffer
		}
		return zone.Low - buffer
	}

	best := math.Inf(1)
	for _, s := range swings {
		if s.Type == structure.SwingHigh && s.Price > entry && s.Price < best {
			best = s.Price
		}
	}
	if !math.IsInf(best, 1) {
		return best + buffer
	}
	return zone.High + buffer
}

// takeProfit targets risk x RR, snapping to the nearest structural swing
// in the profit direction when that still lands between 2.0R and 3.0R.
// The floor is 0.6x the configured ratio.
func (p *EntryPlanner) takeProfit(itfCandles []market.Candle, dir structure.Direction, entry, stop float64) float64 {
	risk := math.Abs(entry - stop)
	rr := p.cfg.RewardRatio
	floor := 0.6 * rr * risk

	defaultTP := entry + rr*risk
	if dir == structure.Bearish {
		defaultTP = entry - rr*risk
	}

	swings := structure.NewSwingDetector().Detect(itfCandles)
	var snapped float64
	found := false
	if dir == structure.Bullish {
		nearest := math.Inf(1)
		for _, s := range swings {
			if s.Type != structure.SwingHigh || s.Price <= entry {
				continue
			}
			if r := (s.Price - entry) / risk; r >= 2.0 && r <= 3.0 && s.Price < nearest {
				nearest = s.Price
				found = true
			}
		}
		snapped = nearest
	} else {
		nearest := math.Inf(-1)
		for _, s := range swings {
			if s.Type != structure.SwingLow || s.Price >= entry {
				continue
			}
			if r := (entry - s.Price) / risk; r >= 2.0 && r <= 3.0 && s.Price > nearest {
				nearest = s.Price
				found = true
			}
		}
		snapped = nearest
	}

	tp := defaultTP
	if found {
		tp = snapped
	}
	if math.Abs(tp-entry) < floor {
		if dir == structure.Bullish {
			tp = entry + floor
		} else {
			tp = entry - floor
		}
	}
	return tp
}

// orderKind decides market vs pending execution: market within the
// threshold of current price, otherwise a limit (or stop when the entry is
// beyond current price in the trade direction).
func (p *EntryPlanner) orderKind(dir structure.Direction, entry, currentPrice float64) OrderKind {
	if currentPrice > 0 && math.Abs(entry-currentPrice)/currentPrice <= p.cfg.MarketThreshold {
		return OrderMarket
	}
	if dir == structure.Bullish && entry > currentPrice {
		return OrderStop
	}
	if dir == structure.Bearish && entry < currentPrice {
		return OrderStop
	}
	return OrderLimit
}
