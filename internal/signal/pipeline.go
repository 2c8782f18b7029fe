package signal

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smc-trading-engine/internal/bias"
	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/structure"
	"smc-trading-engine/internal/zones"
)

// PipelineConfig is the single configuration record threaded through the
// pipeline. Environment binding happens in the config package; nothing in
// here reads the process environment.
type PipelineConfig struct {
	// Minimum candle counts per timeframe before an evaluation is attempted.
	MinHTFCandles int
	MinITFCandles int
	MinLTFCandles int

	// UseICTModel selects the strict pipeline: sideways HTF rejection and
	// the hard setup gate. False runs the relaxed fallback where those
	// checks only contribute to the confluence score.
	UseICTModel bool

	StrictClose   bool
	SwingLookback int

	// SkipITFAlignment bypasses the M15 flow alignment gate.
	SkipITFAlignment bool
	// ForceMinimalEntry replaces setup detection with a synthetic zone
	// around the current price. Debug only.
	ForceMinimalEntry bool
	// SyntheticZoneWidth sizes the debug zone (price units).
	SyntheticZoneWidth float64

	RequireLTFBOS  bool
	MinITFBOSCount int

	// MinTrendStrength and MinVolatilityRatio gate choppy or dead markets,
	// both in percent. Zero applies the defaults (35 and 25); a negative
	// value disables the gate.
	MinTrendStrength   float64
	MinVolatilityRatio float64

	RewardRatio       float64
	SLBufferOverride  float64
	RetracementMinPct float64

	// AllowedSessions is the symbol's session allow-list. Empty allows all.
	AllowedSessions []Session

	Debug bool
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.MinHTFCandles <= 0 {
		c.MinHTFCandles = 50
	}
	if c.MinITFCandles <= 0 {
		c.MinITFCandles = 50
	}
	if c.MinLTFCandles <= 0 {
		c.MinLTFCandles = 10
	}
	if c.MinTrendStrength == 0 {
		c.MinTrendStrength = 35
	}
	if c.MinVolatilityRatio == 0 {
		c.MinVolatilityRatio = 25
	}
	if c.RewardRatio <= 0 {
		c.RewardRatio = 3.0
	}
	if c.SyntheticZoneWidth <= 0 {
		c.SyntheticZoneWidth = 1.0
	}
	return c
}

// Pipeline turns candle windows into trade signals. It holds no market
// state of its own; every evaluation recomputes structure from the store's
// windows, which keeps results deterministic under candle revisions.
type Pipeline struct {
	store  market.Store
	cfg    PipelineConfig
	logger zerolog.Logger
}

// NewPipeline creates a signal pipeline over the candle store.
func NewPipeline(store market.Store, cfg PipelineConfig, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "signal-pipeline").Logger(),
	}
}

// Generate evaluates the symbol and returns a signal or a rejection. The
// error return is reserved for infrastructure failures (candle store);
// every analytical "no trade" outcome is a Rejection.
func (p *Pipeline) Generate(ctx context.Context, symbol string) (*Signal, *Rejection, error) {
	var debug []string
	note := func(format string, args ...interface{}) {
		debug = append(debug, fmt.Sprintf(format, args...))
	}
	reject := func(format string, args ...interface{}) (*Signal, *Rejection, error) {
		reason := fmt.Sprintf(format, args...)
		p.logger.Debug().Str("symbol", symbol).Str("reason", reason).Msg("signal rejected")
		r := &Rejection{Reason: reason}
		if p.cfg.Debug {
			r.DebugReasons = append(debug, reason)
		}
		return nil, r, nil
	}

	// 1. Candle windows.
	htf, err := p.store.Candles(ctx, symbol, market.H4, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch H4 candles: %w", err)
	}
	itf, err := p.store.Candles(ctx, symbol, market.M15, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch M15 candles: %w", err)
	}
	ltf, err := p.store.Candles(ctx, symbol, market.M1, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch M1 candles: %w", err)
	}
	if len(htf) < p.cfg.MinHTFCandles {
		return reject("not enough H4 candles: have %d, need %d", len(htf), p.cfg.MinHTFCandles)
	}
	if len(itf) < p.cfg.MinITFCandles {
		return reject("not enough M15 candles: have %d, need %d", len(itf), p.cfg.MinITFCandles)
	}
	if len(ltf) < p.cfg.MinLTFCandles {
		return reject("not enough M1 candles: have %d, need %d", len(ltf), p.cfg.MinLTFCandles)
	}
	currentPrice, err := p.store.LastPrice(ctx, symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch last price: %w", err)
	}

	// 2. HTF bias.
	htfBias := bias.NewAnalyzer(p.cfg.StrictClose, p.cfg.SwingLookback).Analyze(htf)
	if htfBias.Direction == structure.TrendUnknown {
		return reject("HTF bias is neutral")
	}
	note("HTF bias %s via %s", htfBias.Direction, htfBias.Method)

	// 3. Strict mode refuses a bias the state machine never confirmed.
	if p.cfg.UseICTModel && htfBias.Sideways() {
		return reject("HTF is sideways")
	}

	dir := trendDirection(htfBias.Direction)

	// 4. Choppy or dead markets.
	if p.cfg.MinTrendStrength > 0 {
		if s := bias.TrendStrength(tail(itf, 20)); s < p.cfg.MinTrendStrength {
			return reject("15m trend strength %.1f%% below %.0f%%", s, p.cfg.MinTrendStrength)
		}
	}
	if p.cfg.MinVolatilityRatio > 0 {
		if v := bias.VolatilityRatio(itf, 5, 20); v < p.cfg.MinVolatilityRatio {
			return reject("volatility ratio %.1f%% below %.0f%%", v, p.cfg.MinVolatilityRatio)
		}
	}

	// 5. ITF flow alignment.
	itfBias := bias.NewAnalyzer(p.cfg.StrictClose, p.cfg.SwingLookback).Analyze(itf)
	itfAligned := itfBias.Direction == htfBias.Direction
	if !p.cfg.SkipITFAlignment {
		if !itfAligned {
			return reject("ITF flow %s not aligned with HTF bias %s", itfBias.Direction, htfBias.Direction)
		}
		dirBOS := itfBias.BullishBOS
		if dir == structure.Bearish {
			dirBOS = itfBias.BearishBOS
		}
		if p.cfg.MinITFBOSCount > 0 && dirBOS < p.cfg.MinITFBOSCount {
			return reject("only %d ITF BOS in trade direction, need %d", dirBOS, p.cfg.MinITFBOSCount)
		}
	}
	if itfAligned {
		note("ITF flow aligned")
	}

	// 6. M15 setup zone.
	var zone *bias.SetupZone
	if p.cfg.ForceMinimalEntry {
		zone = bias.SyntheticZone(dir, currentPrice, p.cfg.SyntheticZoneWidth)
		note("synthetic setup zone around %.5f", currentPrice)
	} else {
		var reason string
		zone, reason = bias.NewSetupDetector(bias.SetupConfig{
			StrictClose:        p.cfg.StrictClose,
			SwingLookback:      p.cfg.SwingLookback,
			AllowBOSSubstitute: !p.cfg.UseICTModel,
		}).Detect(symbol, itf, dir)
		if zone == nil {
			return reject("M15 setup: %s", reason)
		}
		note("M15 setup zone [%.5f, %.5f]", zone.Low, zone.High)
	}

	// 7. M1 execution.
	plan := bias.NewEntryPlanner(bias.EntryConfig{
		StrictClose:       p.cfg.StrictClose,
		SwingLookback:     p.cfg.SwingLookback,
		RewardRatio:       p.cfg.RewardRatio,
		SLBufferOverride:  p.cfg.SLBufferOverride,
		RetracementMinPct: p.cfg.RetracementMinPct,
		RequireLocalBOS:   p.cfg.RequireLTFBOS,
	}).Plan(symbol, ltf, itf, zone, currentPrice)
	if !plan.ShouldEnter {
		return reject("M1 entry rejected: %s", strings.Join(plan.Reasons, "; "))
	}
	debug = append(debug, plan.Reasons...)

	// Shared context for the gate and scoring.
	itfSwings := structure.NewSwingDetector().Detect(itf)
	itfSweep := zones.LatestSweep(zones.NewSweepDetector(14).Detect(itf, itfSwings), dir)

	ltfSwings := structure.NewSwingDetector().Detect(ltf)
	ltfBOSEvents := structure.NewBOSDetector(p.cfg.StrictClose, p.cfg.SwingLookback).Detect(ltf, ltfSwings)
	var ltfBOS *structure.BOSEvent
	for i := len(ltfBOSEvents) - 1; i >= 0; i-- {
		if ltfBOSEvents[i].Direction == dir {
			ev := ltfBOSEvents[i]
			ltfBOS = &ev
			break
		}
	}

	pd := zones.ComputePremiumDiscount(symbol, itf, currentPrice)
	adr := computeADR(htf)

	var disp zones.DisplacementResult
	if zone.DisplacementIndex > 0 {
		// The displacement leg points with the pullback into the zone.
		disp = zones.NewDisplacementChecker(14, 0, 0).CheckCandle(itf, zone.DisplacementIndex, oppositeDir(dir))
	}

	// 8. Hard setup gate, strict mode only.
	if p.cfg.UseICTModel && !zone.Synthetic {
		if itfSweep == nil {
			return reject("no liquidity sweep in trade direction")
		}
		if disp.TRMultiple < 1.2 && disp.BodyPct < 55 {
			return reject("displacement too weak: body %.0f%%, range %.2fx ATR", disp.BodyPct, disp.TRMultiple)
		}
		if dir == structure.Bullish && pd.Current != zones.ZoneDiscount {
			return reject("buy setup not in discount (price %.5f vs fib50 %.5f)", currentPrice, pd.Fib50)
		}
		if dir == structure.Bearish && pd.Current != zones.ZonePremium {
			return reject("sell setup not in premium (price %.5f vs fib50 %.5f)", currentPrice, pd.Fib50)
		}
		if ltfBOS == nil {
			return reject("no M1 BOS in trade direction")
		}
		if dist, minDist := p.bosBreakDistance(ltf, *ltfBOS), 0.3*market.ATR(ltf, 14); dist < minDist {
			return reject("M1 BOS break distance %.5f below %.5f", dist, minDist)
		}
		if !p.fvgInsideOrderBlock(symbol, itf, zone) {
			return reject("no FVG of sufficient size inside the setup order block")
		}
	}

	// 9. Session filter.
	evalTime := ltf[len(ltf)-1].EndTime
	if !SessionValid(evalTime, p.cfg.AllowedSessions) {
		return reject("session %s not in allow-list", CurrentSession(evalTime))
	}

	// 10. Confluence and assembly.
	htfOB := zones.LatestUnmitigated(zones.NewOrderBlockDetector(0).Detect(htf), dir, -1)

	in := confluenceInput{
		HTFTrend:          !htfBias.Sideways(),
		PDBase:            pd.Current != zones.ZoneNeutral,
		ADRBase:           adr.ADR > 0,
		ITFAligned:        itfAligned,
		LTFBOS:            ltfBOS != nil,
		HTFOB:             htfOB != nil,
		ITFOB:             zone.OrderBlock != nil,
		LTFOB:             plan.Refined,
		Sweep:             itfSweep != nil,
		FVGResolved:       zone.FVG != nil,
		VIAligned:         zone.OrderBlock != nil && zone.OrderBlock.VolumeImbalance,
		SMT:               false,
		EntryRefined:      plan.Refined,
		Trendline:         false,
		SessionValid:      len(p.cfg.AllowedSessions) > 0,
		PDScore:           pd.Score(dir == structure.Bullish),
		ADRScore:          adr.Score,
		DisplacementScore: disp.Score,
	}

	reasons := []string{fmt.Sprintf("HTF bias: %s", htfBias.Direction)}
	if itfAligned {
		reasons = append(reasons, "ITF flow aligned")
	}
	if !zone.Synthetic {
		reasons = append(reasons, fmt.Sprintf("M15 setup zone [%.5f, %.5f]", zone.Low, zone.High))
	}
	if plan.LocalChoch {
		reasons = append(reasons, "M1 CHoCH")
	}
	if ltfBOS != nil {
		reasons = append(reasons, "M1 BOS")
	}
	if plan.Refined {
		reasons = append(reasons, "Entry refined to M1 order block")
	}
	if htfOB != nil {
		reasons = append(reasons, "H4 order block")
	}
	if itfSweep != nil {
		reasons = append(reasons, fmt.Sprintf("Liquidity sweep (%s)", itfSweep.Type))
	}
	if zone.FVG != nil {
		reasons = append(reasons, "FVG in setup zone")
	}
	if in.VIAligned {
		reasons = append(reasons, "Volume imbalance")
	}
	if pd.Current != zones.ZoneNeutral {
		reasons = append(reasons, fmt.Sprintf("Premium/discount: %s", pd.Current))
	}
	if adr.ADR > 0 {
		reasons = append(reasons, fmt.Sprintf("ADR used %.0f%%", adr.UsedPct))
	}
	reasons = append(reasons, "Session valid")

	sig := &Signal{
		ID:                uuid.New().String(),
		Symbol:            symbol,
		Direction:         dirToSide(dir),
		Entry:             plan.Entry,
		StopLoss:          plan.StopLoss,
		TakeProfit:        plan.TakeProfit,
		OrderKind:         plan.Kind,
		HTFTrend:          htfBias.Direction,
		ITFFlow:           itfBias.Direction,
		LTFBOS:            ltfBOS != nil,
		PremiumDiscount:   pd.Current,
		SMT:               in.SMT,
		VolumeImbalance:   in.VIAligned,
		Session:           CurrentSession(evalTime),
		ConfluenceReasons: reasons,
		ConfluenceScore:   in.score(),
		Timestamp:         evalTime,
	}
	if zone.OrderBlock != nil {
		sig.OBLevels = append(sig.OBLevels, Level{High: zone.OrderBlock.High, Low: zone.OrderBlock.Low})
	}
	if htfOB != nil {
		sig.OBLevels = append(sig.OBLevels, Level{High: htfOB.High, Low: htfOB.Low})
	}
	if zone.FVG != nil {
		sig.FVGLevels = append(sig.FVGLevels, Level{High: zone.FVG.High, Low: zone.FVG.Low})
	}
	if p.cfg.Debug {
		sig.Meta = map[string]interface{}{"debug_reasons": debug}
	}

	p.logger.Info().
		Str("symbol", symbol).
		Str("direction", string(sig.Direction)).
		Float64("entry", sig.Entry).
		Float64("stop_loss", sig.StopLoss).
		Float64("take_profit", sig.TakeProfit).
		Float64("confluence", sig.ConfluenceScore).
		Msg("signal generated")
	return sig, nil, nil
}

// bosBreakDistance measures how far past the broken level the breaking
// candle travelled.
func (p *Pipeline) bosBreakDistance(candles []market.Candle, ev structure.BOSEvent) float64 {
	if ev.Index < 0 || ev.Index >= len(candles) {
		return 0
	}
	c := candles[ev.Index]
	if ev.Direction == structure.Bullish {
		if ev.StrictClose {
			return c.Close - ev.Level
		}
		return c.High - ev.Level
	}
	if ev.StrictClose {
		return ev.Level - c.Close
	}
	return ev.Level - c.Low
}

// fvgInsideOrderBlock reports whether at least one gap of meaningful size
// sits inside the setup's order block.
func (p *Pipeline) fvgInsideOrderBlock(symbol string, itf []market.Candle, zone *bias.SetupZone) bool {
	if zone.OrderBlock == nil {
		return false
	}
	minGap := 0.3 * market.ATR(itf, 14)
	for _, g := range zones.NewFVGDetector(symbol).Detect(itf) {
		if g.Size() >= minGap && g.Low >= zone.OrderBlock.Low && g.High <= zone.OrderBlock.High {
			return true
		}
	}
	return false
}

func tail(candles []market.Candle, n int) []market.Candle {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

func trendDirection(t structure.Trend) structure.Direction {
	if t == structure.TrendBullish {
		return structure.Bullish
	}
	return structure.Bearish
}

func oppositeDir(d structure.Direction) structure.Direction {
	if d == structure.Bullish {
		return structure.Bearish
	}
	return structure.Bullish
}

func dirToSide(d structure.Direction) Side {
	if d == structure.Bullish {
		return SideBuy
	}
	return SideSell
}
