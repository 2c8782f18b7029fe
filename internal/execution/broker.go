package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"smc-trading-engine/internal/circuit"
	"smc-trading-engine/internal/metrics"
)

// brokerTimeout is the hard ceiling on one connector call. A timed-out
// call is an error; it never counts as a trade.
const brokerTimeout = 10 * time.Second

// OpenTradeRequest is the connector payload for opening a position.
type OpenTradeRequest struct {
	Symbol          string                 `json:"symbol"`
	Direction       string                 `json:"direction"`  // BUY | SELL
	EntryType       string                 `json:"entry_type"` // MARKET | LIMIT | STOP
	OrderKind       string                 `json:"order_kind"` // market | limit | stop
	EntryPrice      float64                `json:"entry_price"`
	LotSize         float64                `json:"lot_size"`
	StopLossPrice   float64                `json:"stop_loss_price"`
	TakeProfitPrice float64                `json:"take_profit_price"`
	StrategyID      string                 `json:"strategy_id"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// OpenTradeResponse is the connector's 2xx body. The ticket may arrive as
// a string or a number depending on the connector build.
type OpenTradeResponse struct {
	MT5Ticket       json.Number `json:"mt5_ticket"`
	Status          string      `json:"status"`
	Symbol          string      `json:"symbol"`
	Direction       string      `json:"direction"`
	LotSize         float64     `json:"lot_size"`
	EntryPrice      float64     `json:"entry_price"`
	StopLossPrice   float64     `json:"stop_loss_price"`
	TakeProfitPrice float64     `json:"take_profit_price"`
	OpenedAt        string      `json:"opened_at"`
}

// brokerError is the connector's non-2xx body.
type brokerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BrokerClient talks to per-account MT5 connectors over HTTP. One client
// serves every account; the base URL comes from the account config per
// call.
type BrokerClient struct {
	http     *resty.Client
	breakers *circuit.Group
	logger   zerolog.Logger
}

// NewBrokerClient creates the connector client. No retries: a failed open
// is a SKIP decision, not something to hammer the broker with.
func NewBrokerClient(logger zerolog.Logger) *BrokerClient {
	client := resty.New().
		SetTimeout(brokerTimeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	return &BrokerClient{
		http:     client,
		breakers: circuit.NewGroup(circuit.DefaultConfig()),
		logger:   logger.With().Str("component", "broker-client").Logger(),
	}
}

// OpenTrade posts the order to the account's connector. 2xx returns the
// parsed response; 4xx and 5xx return a structured error carrying the
// status and the connector's error body when parseable.
func (b *BrokerClient) OpenTrade(ctx context.Context, baseURL string, req OpenTradeRequest) (*OpenTradeResponse, error) {
	breaker := b.breakers.Get(baseURL)
	if ok, reason := breaker.Allow(); !ok {
		return nil, fmt.Errorf("MT5 Connector unavailable: %s", reason)
	}

	started := time.Now()

	var result OpenTradeResponse
	resp, err := b.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post(baseURL + "/api/v1/trades/open")

	elapsed := time.Since(started)
	if err != nil {
		breaker.RecordFailure()
		metrics.BrokerLatency.WithLabelValues("transport_error").Observe(elapsed.Seconds())
		b.logger.Error().Err(err).Str("base_url", baseURL).Dur("elapsed", elapsed).Msg("broker call failed")
		return nil, fmt.Errorf("MT5 Connector request failed: %w", err)
	}

	// Any HTTP response means the connector is reachable.
	breaker.RecordSuccess()

	b.logger.Debug().
		Int("status", resp.StatusCode()).
		Str("symbol", req.Symbol).
		Dur("elapsed", elapsed).
		Msg("broker call completed")

	if resp.IsSuccess() {
		metrics.BrokerLatency.WithLabelValues("success").Observe(elapsed.Seconds())
		return &result, nil
	}
	metrics.BrokerLatency.WithLabelValues("rejected").Observe(elapsed.Seconds())

	var be brokerError
	detail := ""
	if json.Unmarshal(resp.Body(), &be) == nil {
		if be.Error != "" {
			detail = be.Error
		} else if be.Message != "" {
			detail = be.Message
		}
	}
	if detail == "" {
		detail = string(resp.Body())
	}
	return nil, fmt.Errorf("MT5 Connector returned status %d: %s", resp.StatusCode(), detail)
}
