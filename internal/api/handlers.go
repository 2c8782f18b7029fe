package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smc-trading-engine/internal/events"
	"smc-trading-engine/internal/execution"
	"smc-trading-engine/internal/metrics"
	"smc-trading-engine/internal/risk"
)

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "disabled"
	if s.repo != nil {
		dbStatus = "healthy"
		if err := s.repo.HealthCheck(ctx); err != nil {
			dbStatus = "unhealthy"
		}
	}

	status := http.StatusOK
	overall := "healthy"
	if dbStatus == "unhealthy" {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":   overall,
		"database": dbStatus,
		"accounts": len(s.registry.Accounts()),
	})
}

func (s *Server) handleListAccounts(c *gin.Context) {
	type accountView struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Symbols   []string `json:"symbols"`
		Enabled   bool     `json:"enabled"`
		Paused    bool     `json:"paused"`
		Connected bool     `json:"connected"`
	}

	var out []accountView
	for _, acct := range s.registry.Accounts() {
		view := accountView{
			ID:      acct.ID,
			Name:    acct.Name,
			Symbols: acct.Symbols,
			Enabled: acct.Enabled,
		}
		if state, ok := s.registry.RuntimeState(acct.ID); ok {
			view.Paused = state.Paused
			view.Connected = state.Connected
		}
		out = append(out, view)
	}
	successResponse(c, out)
}

func (s *Server) handleGetAccount(c *gin.Context) {
	id := c.Param("id")
	acct, ok := s.registry.Account(id)
	if !ok {
		errorResponse(c, http.StatusNotFound, "account not found")
		return
	}
	state, _ := s.registry.RuntimeState(id)
	successResponse(c, gin.H{
		"account": acct,
		"state":   state,
	})
}

func (s *Server) handlePauseAccount(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.registry.Account(id); !ok {
		errorResponse(c, http.StatusNotFound, "account not found")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "manual pause"
	}

	s.registry.Pause(id, body.Reason)
	s.publish(events.EventAccountPaused, map[string]interface{}{"account": id, "reason": body.Reason})
	successResponse(c, gin.H{"paused": true, "reason": body.Reason})
}

func (s *Server) handleResumeAccount(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.registry.Account(id); !ok {
		errorResponse(c, http.StatusNotFound, "account not found")
		return
	}
	s.registry.Resume(id)
	s.publish(events.EventAccountResumed, map[string]interface{}{"account": id})
	successResponse(c, gin.H{"paused": false})
}

func (s *Server) handleKillSwitchState(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.registry.Account(id); !ok {
		errorResponse(c, http.StatusNotFound, "account not found")
		return
	}

	resp := gin.H{"active": false}
	if s.killSwitch != nil {
		resp["active"] = s.killSwitch.IsActive(id)
	}
	if s.repo != nil {
		history, err := s.repo.KillSwitchHistory(c.Request.Context(), id, queryLimit(c, 20))
		if err != nil {
			errorResponse(c, http.StatusInternalServerError, err.Error())
			return
		}
		resp["history"] = history
	}
	successResponse(c, resp)
}

func (s *Server) handleRecentDecisions(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.registry.Account(id); !ok {
		errorResponse(c, http.StatusNotFound, "account not found")
		return
	}
	if s.repo == nil {
		errorResponse(c, http.StatusServiceUnavailable, "decision storage unavailable")
		return
	}

	decisions, err := s.repo.RecentDecisions(c.Request.Context(), id, queryLimit(c, 50))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, decisions)
}

type evaluateRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func (s *Server) handleEvaluateSignal(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}

	sig, rej, err := s.generator.Generate(c.Request.Context(), req.Symbol)
	if err != nil {
		metrics.SignalEvaluations.WithLabelValues(req.Symbol, "error").Inc()
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if rej != nil {
		metrics.SignalEvaluations.WithLabelValues(req.Symbol, "rejected").Inc()
		metrics.SignalRejections.WithLabelValues(req.Symbol, rej.Reason).Inc()
		s.publish(events.EventSignalRejected, map[string]interface{}{"symbol": req.Symbol, "reason": rej.Reason})
		successResponse(c, gin.H{"signal": nil, "rejection": rej})
		return
	}

	metrics.SignalEvaluations.WithLabelValues(req.Symbol, "signal").Inc()
	metrics.ConfluenceScore.Observe(sig.ConfluenceScore)
	s.publish(events.EventSignalGenerated, map[string]interface{}{
		"symbol": sig.Symbol, "signal_id": sig.ID, "direction": sig.Direction, "score": sig.ConfluenceScore,
	})
	successResponse(c, gin.H{"signal": sig, "rejection": nil})
}

type executeRequest struct {
	Symbol            string  `json:"symbol" binding:"required"`
	CurrentSpreadPips float64 `json:"current_spread_pips"`
	CurrentExposure   float64 `json:"current_exposure"`
	ConcurrentTrades  int     `json:"concurrent_trades"`
	Guardrail         string  `json:"guardrail"`
}

// handleExecuteSignal evaluates the symbol and, when a signal results,
// fans it out to every eligible account.
func (s *Server) handleExecuteSignal(c *gin.Context) {
	if s.executor == nil {
		errorResponse(c, http.StatusServiceUnavailable, "execution is disabled")
		return
	}

	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}

	sig, rej, err := s.generator.Generate(c.Request.Context(), req.Symbol)
	if err != nil {
		metrics.SignalEvaluations.WithLabelValues(req.Symbol, "error").Inc()
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if rej != nil {
		metrics.SignalEvaluations.WithLabelValues(req.Symbol, "rejected").Inc()
		metrics.SignalRejections.WithLabelValues(req.Symbol, rej.Reason).Inc()
		s.publish(events.EventSignalRejected, map[string]interface{}{"symbol": req.Symbol, "reason": rej.Reason})
		successResponse(c, gin.H{"signal": nil, "rejection": rej, "execution": nil})
		return
	}
	metrics.SignalEvaluations.WithLabelValues(req.Symbol, "signal").Inc()
	metrics.ConfluenceScore.Observe(sig.ConfluenceScore)
	s.publish(events.EventSignalGenerated, map[string]interface{}{
		"symbol": sig.Symbol, "signal_id": sig.ID, "direction": sig.Direction, "score": sig.ConfluenceScore,
	})

	guardrail := risk.GuardrailNormal
	switch req.Guardrail {
	case string(risk.GuardrailReduced):
		guardrail = risk.GuardrailReduced
	case string(risk.GuardrailBlocked):
		guardrail = risk.GuardrailBlocked
	}

	base := execution.BaseContext{
		CurrentSpreadPips: req.CurrentSpreadPips,
		CurrentExposure:   req.CurrentExposure,
		ConcurrentTrades:  req.ConcurrentTrades,
		Now:               sig.Timestamp,
	}
	agg := s.executor.ExecuteSignal(c.Request.Context(), sig, base, guardrail)
	successResponse(c, gin.H{"signal": sig, "rejection": nil, "execution": agg})
}

func (s *Server) handleRecentEvents(c *gin.Context) {
	if s.bus == nil {
		successResponse(c, []events.Event{})
		return
	}
	successResponse(c, s.bus.Recent(queryLimit(c, 100)))
}

func (s *Server) publish(eventType events.EventType, data map[string]interface{}) {
	if s.bus != nil {
		s.bus.Publish(eventType, data)
	}
}

func queryLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return fallback
	}
	return n
}
