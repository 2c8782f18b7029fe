package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smc-trading-engine/internal/database"
	"smc-trading-engine/internal/market"
)

// Ingestion endpoints. The connector-side poller pushes candle batches and
// equity readings here; the engine itself never polls brokers for data.

type candleBatchRequest struct {
	Symbol    string          `json:"symbol" binding:"required"`
	Timeframe string          `json:"timeframe" binding:"required"`
	Candles   []market.Candle `json:"candles" binding:"required"`
	Replace   bool            `json:"replace"`
}

func (s *Server) handleIngestCandles(c *gin.Context) {
	if s.store == nil {
		errorResponse(c, http.StatusServiceUnavailable, "candle store unavailable")
		return
	}

	var req candleBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "symbol, timeframe, and candles are required")
		return
	}
	tf := market.Timeframe(req.Timeframe)
	switch tf {
	case market.M1, market.M5, market.M15, market.H1, market.H4:
	default:
		errorResponse(c, http.StatusBadRequest, "unknown timeframe "+req.Timeframe)
		return
	}

	for i := range req.Candles {
		req.Candles[i].Symbol = req.Symbol
		req.Candles[i].Timeframe = tf
	}
	if req.Replace {
		s.store.SetCandles(req.Symbol, tf, req.Candles)
	} else {
		for _, candle := range req.Candles {
			s.store.AppendCandle(candle)
		}
	}
	successResponse(c, gin.H{"accepted": len(req.Candles)})
}

type equityRequest struct {
	AccountID      string  `json:"account_id" binding:"required"`
	BrokerAccount  string  `json:"broker_account"`
	Balance        float64 `json:"balance"`
	Equity         float64 `json:"equity" binding:"required"`
	FloatingPnL    float64 `json:"floating_pnl"`
	ClosedPnLToday float64 `json:"closed_pnl_today"`
	ClosedPnLWeek  float64 `json:"closed_pnl_week"`
	MaxDrawdownAbs float64 `json:"max_drawdown_abs"`
}

func (s *Server) handleIngestEquity(c *gin.Context) {
	var req equityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "account_id and equity are required")
		return
	}
	if _, ok := s.registry.Account(req.AccountID); !ok {
		errorResponse(c, http.StatusNotFound, "account not found")
		return
	}

	snap := &database.EquitySnapshot{
		AccountID:      req.AccountID,
		BrokerAccount:  req.BrokerAccount,
		Timestamp:      time.Now().UTC(),
		Balance:        req.Balance,
		Equity:         req.Equity,
		FloatingPnL:    req.FloatingPnL,
		ClosedPnLToday: req.ClosedPnLToday,
		ClosedPnLWeek:  req.ClosedPnLWeek,
		MaxDrawdownAbs: req.MaxDrawdownAbs,
	}
	if s.repo != nil {
		if err := s.repo.InsertEquitySnapshot(c.Request.Context(), snap); err != nil {
			errorResponse(c, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if s.equityCache != nil {
		s.equityCache.Put(c.Request.Context(), snap)
	}
	successResponse(c, gin.H{"id": snap.ID})
}
