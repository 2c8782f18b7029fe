package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"smc-trading-engine/internal/account"
	"smc-trading-engine/internal/execution"
	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/risk"
	"smc-trading-engine/internal/signal"
)

type stubGenerator struct {
	sig *signal.Signal
	rej *signal.Rejection
	err error
}

func (g *stubGenerator) Generate(_ context.Context, symbol string) (*signal.Signal, *signal.Rejection, error) {
	return g.sig, g.rej, g.err
}

type stubExecutor struct {
	agg *execution.AggregatedExecutionResult
}

func (e *stubExecutor) ExecuteSignal(_ context.Context, sig *signal.Signal, _ execution.BaseContext, _ risk.GuardrailMode) *execution.AggregatedExecutionResult {
	return e.agg
}

func testServer(gen SignalGenerator, exec SignalExecutor) *Server {
	registry := account.NewRegistry([]account.AccountInfo{
		{ID: "acc1", Name: "Alpha", Symbols: []string{"XAUUSD"}, Enabled: true},
	}, zerolog.Nop())
	return NewServer(ServerConfig{ProductionMode: true}, registry, nil, nil, gen, exec, zerolog.Nop())
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	w := doRequest(t, testServer(nil, nil), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "healthy" || resp["database"] != "disabled" {
		t.Errorf("resp = %v", resp)
	}
}

func TestHandleListAccounts(t *testing.T) {
	w := doRequest(t, testServer(nil, nil), http.MethodGet, "/api/v1/accounts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0]["id"] != "acc1" {
		t.Errorf("data = %v", resp.Data)
	}
}

func TestHandlePauseResume(t *testing.T) {
	s := testServer(nil, nil)

	w := doRequest(t, s, http.MethodPost, "/api/v1/accounts/acc1/pause", `{"reason":"maintenance"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("pause status = %d", w.Code)
	}
	state, _ := s.registry.RuntimeState("acc1")
	if !state.Paused || state.PauseReason != "maintenance" {
		t.Errorf("state = %+v", state)
	}

	w = doRequest(t, s, http.MethodPost, "/api/v1/accounts/acc1/resume", "")
	if w.Code != http.StatusOK {
		t.Fatalf("resume status = %d", w.Code)
	}
	state, _ = s.registry.RuntimeState("acc1")
	if state.Paused {
		t.Errorf("still paused: %+v", state)
	}
}

func TestHandlePauseUnknownAccount(t *testing.T) {
	w := doRequest(t, testServer(nil, nil), http.MethodPost, "/api/v1/accounts/nope/pause", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleEvaluateSignalRejection(t *testing.T) {
	gen := &stubGenerator{rej: &signal.Rejection{Reason: "HTF bias is neutral"}}
	w := doRequest(t, testServer(gen, nil), http.MethodPost, "/api/v1/signals/evaluate", `{"symbol":"XAUUSD"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Signal    *signal.Signal    `json:"signal"`
			Rejection *signal.Rejection `json:"rejection"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Signal != nil || resp.Data.Rejection == nil || resp.Data.Rejection.Reason != "HTF bias is neutral" {
		t.Errorf("data = %+v", resp.Data)
	}
}

func TestHandleEvaluateSignalMissingSymbol(t *testing.T) {
	w := doRequest(t, testServer(&stubGenerator{}, nil), http.MethodPost, "/api/v1/signals/evaluate", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleExecuteSignal(t *testing.T) {
	sig := &signal.Signal{ID: "sig-1", Symbol: "XAUUSD", Direction: signal.SideBuy, ConfluenceScore: 70}
	gen := &stubGenerator{sig: sig}
	exec := &stubExecutor{agg: &execution.AggregatedExecutionResult{
		Symbol:         "XAUUSD",
		SignalID:       "sig-1",
		TradedAccounts: []string{"acc1"},
	}}

	w := doRequest(t, testServer(gen, exec), http.MethodPost, "/api/v1/signals/execute",
		`{"symbol":"XAUUSD","current_spread_pips":1.2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Execution *execution.AggregatedExecutionResult `json:"execution"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Execution == nil || len(resp.Data.Execution.TradedAccounts) != 1 {
		t.Errorf("execution = %+v", resp.Data.Execution)
	}
}

func TestHandleIngestCandles(t *testing.T) {
	s := testServer(nil, nil)
	store := market.NewMemoryStore()
	s.WithMarketStore(store)

	body := `{
		"symbol": "XAUUSD",
		"timeframe": "M15",
		"replace": true,
		"candles": [
			{"start_time": "2026-01-05T00:00:00Z", "end_time": "2026-01-05T00:15:00Z",
			 "open": 100, "high": 101, "low": 99, "close": 100.5, "volume": 10}
		]
	}`
	w := doRequest(t, s, http.MethodPost, "/api/v1/candles", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	candles, err := store.Candles(context.Background(), "XAUUSD", market.M15, 0)
	if err != nil || len(candles) != 1 {
		t.Fatalf("candles = %v, err %v", candles, err)
	}
	if candles[0].Symbol != "XAUUSD" || candles[0].Timeframe != market.M15 {
		t.Errorf("candle keys not stamped: %+v", candles[0])
	}
}

func TestHandleIngestCandlesBadTimeframe(t *testing.T) {
	s := testServer(nil, nil)
	s.WithMarketStore(market.NewMemoryStore())
	body := `{"symbol": "XAUUSD", "timeframe": "M7", "candles": [{"open": 1}]}`
	w := doRequest(t, s, http.MethodPost, "/api/v1/candles", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleExecuteSignalDisabled(t *testing.T) {
	w := doRequest(t, testServer(&stubGenerator{}, nil), http.MethodPost, "/api/v1/signals/execute", `{"symbol":"XAUUSD"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
}
