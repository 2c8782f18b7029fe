package signal

import (
	"time"

	"smc-trading-engine/internal/bias"
	"smc-trading-engine/internal/structure"
	"smc-trading-engine/internal/zones"
)

// Side is the trade direction of a signal.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Level is a price band attached to a signal for downstream display and
// persistence.
type Level struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// Signal is the pipeline's output: a proposed trade with its levels and
// confluence metadata.
type Signal struct {
	// ID is freshly generated on every evaluation. Identical candle
	// windows reproduce the levels, score, and reasons, not the ID.
	ID                string                 `json:"id"`
	Symbol            string                 `json:"symbol"`
	Direction         Side                   `json:"direction"`
	Entry             float64                `json:"entry"`
	StopLoss          float64                `json:"stop_loss"`
	TakeProfit        float64                `json:"take_profit"`
	OrderKind         bias.OrderKind         `json:"order_kind"`
	HTFTrend          structure.Trend        `json:"htf_trend"`
	ITFFlow           structure.Trend        `json:"itf_flow"`
	LTFBOS            bool                   `json:"ltf_bos"`
	PremiumDiscount   zones.Zone             `json:"premium_discount"`
	OBLevels          []Level                `json:"ob_levels"`
	FVGLevels         []Level                `json:"fvg_levels"`
	SMT               bool                   `json:"smt"`
	VolumeImbalance   bool                   `json:"volume_imbalance"`
	Session           Session                `json:"session"`
	ConfluenceReasons []string               `json:"confluence_reasons"`
	ConfluenceScore   float64                `json:"confluence_score"`
	Timestamp         time.Time              `json:"timestamp"`
	Meta              map[string]interface{} `json:"meta,omitempty"`
}

// Rejection explains why the pipeline produced no signal. Reason is the
// gate that failed; DebugReasons carries the full trail.
type Rejection struct {
	Reason       string   `json:"reason"`
	DebugReasons []string `json:"debug_reasons,omitempty"`
}

func (r *Rejection) Error() string {
	return r.Reason
}
