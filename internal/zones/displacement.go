package zones

import (
	"fmt"

	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/structure"
)

// DisplacementMode controls how a failed displacement check is handled.
type DisplacementMode string

const (
	// DisplacementHard rejects the setup when the check fails.
	DisplacementHard DisplacementMode = "hard"
	// DisplacementSoft feeds the score into confluence instead.
	DisplacementSoft DisplacementMode = "soft"
)

// DisplacementResult is the outcome of a displacement qualification.
// Score is in [-15, +15] and contributes to confluence in soft mode.
type DisplacementResult struct {
	IsValid    bool
	Score      float64
	Reasons    []string
	BodyPct    float64
	TRMultiple float64
}

// DisplacementChecker qualifies directional conviction: a candle with a
// dominant body and a true range well above ATR.
type DisplacementChecker struct {
	atrLookback       int
	strongBodyMinPct  float64
	strongATRMultiple float64
}

// NewDisplacementChecker creates a checker with the given thresholds.
// Zero values fall back to body >= 60% and true range >= 1.5x ATR.
func NewDisplacementChecker(atrLookback int, strongBodyMinPct, strongATRMultiple float64) *DisplacementChecker {
	if atrLookback <= 0 {
		atrLookback = 14
	}
	if strongBodyMinPct <= 0 {
		strongBodyMinPct = 60
	}
	if strongATRMultiple <= 0 {
		strongATRMultiple = 1.5
	}
	return &DisplacementChecker{
		atrLookback:       atrLookback,
		strongBodyMinPct:  strongBodyMinPct,
		strongATRMultiple: strongATRMultiple,
	}
}

// Check evaluates the last candle of the window as a displacement candle
// for the given trade direction.
func (d *DisplacementChecker) Check(candles []market.Candle, dir structure.Direction) DisplacementResult {
	if len(candles) < 2 {
		return DisplacementResult{Reasons: []string{"not enough candles for displacement check"}}
	}
	return d.CheckCandle(candles, len(candles)-1, dir)
}

// CheckCandle evaluates candles[i] as a displacement candle.
func (d *DisplacementChecker) CheckCandle(candles []market.Candle, i int, dir structure.Direction) DisplacementResult {
	res := DisplacementResult{}
	if i < 1 || i >= len(candles) {
		res.Reasons = append(res.Reasons, "displacement index out of range")
		return res
	}
	c := candles[i]
	atr := market.ATR(candles[:i+1], d.atrLookback)
	if atr == 0 {
		res.Reasons = append(res.Reasons, "ATR unavailable")
		return res
	}

	res.BodyPct = c.BodyPercent()
	res.TRMultiple = c.TrueRange(candles[i-1].Close) / atr

	directionOK := (dir == structure.Bullish && c.Bullish()) || (dir == structure.Bearish && c.Bearish())
	bodyOK := res.BodyPct >= d.strongBodyMinPct
	rangeOK := res.TRMultiple >= d.strongATRMultiple

	res.IsValid = directionOK && bodyOK && rangeOK

	// Signed score: each leg contributes up to +/-7.5, clamped to [-15, 15].
	score := 0.0
	if directionOK {
		if bodyOK {
			score += 7.5
			res.Reasons = append(res.Reasons, fmt.Sprintf("strong body %.0f%%", res.BodyPct))
		} else {
			score += (res.BodyPct - d.strongBodyMinPct) / d.strongBodyMinPct * 7.5
		}
		if rangeOK {
			score += 7.5
			res.Reasons = append(res.Reasons, fmt.Sprintf("true range %.2fx ATR", res.TRMultiple))
		} else {
			score += (res.TRMultiple - d.strongATRMultiple) / d.strongATRMultiple * 7.5
		}
	} else {
		score = -15
		res.Reasons = append(res.Reasons, "candle direction against trade")
	}
	if score > 15 {
		score = 15
	}
	if score < -15 {
		score = -15
	}
	res.Score = score
	return res
}
