// Package metrics exposes the engine's Prometheus instruments. Everything
// is registered on the default registry and served by promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalEvaluations counts pipeline runs by outcome: signal, rejected,
	// or error.
	SignalEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smc_signal_evaluations_total",
		Help: "Signal pipeline evaluations by symbol and outcome.",
	}, []string{"symbol", "outcome"})

	// SignalRejections counts rejections by the gate reason.
	SignalRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smc_signal_rejections_total",
		Help: "Signal pipeline rejections by reason.",
	}, []string{"symbol", "reason"})

	// TradeDecisions counts per-account decisions by outcome.
	TradeDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smc_trade_decisions_total",
		Help: "Per-account execution decisions (TRADE or SKIP).",
	}, []string{"symbol", "decision"})

	// KillSwitchTransitions counts activations and deactivations.
	KillSwitchTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smc_kill_switch_transitions_total",
		Help: "Kill switch transitions by account and event type.",
	}, []string{"account", "event"})

	// BrokerLatency observes the duration of MT5 connector calls.
	BrokerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smc_broker_request_duration_seconds",
		Help:    "Latency of MT5 connector trade calls.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"outcome"})

	// ConfluenceScore observes the score distribution of emitted signals.
	ConfluenceScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "smc_confluence_score",
		Help:    "Confluence score of emitted signals.",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})
)
