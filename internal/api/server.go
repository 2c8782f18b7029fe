package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"smc-trading-engine/internal/account"
	"smc-trading-engine/internal/cache"
	"smc-trading-engine/internal/database"
	"smc-trading-engine/internal/events"
	"smc-trading-engine/internal/execution"
	"smc-trading-engine/internal/killswitch"
	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/risk"
	"smc-trading-engine/internal/signal"
)

// SignalGenerator runs the pipeline for one symbol.
type SignalGenerator interface {
	Generate(ctx context.Context, symbol string) (*signal.Signal, *signal.Rejection, error)
}

// SignalExecutor fans a signal out across accounts.
type SignalExecutor interface {
	ExecuteSignal(ctx context.Context, sig *signal.Signal, base execution.BaseContext, guardrail risk.GuardrailMode) *execution.AggregatedExecutionResult
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	AllowedOrigins  string
	ReadTimeout     int // seconds
	WriteTimeout    int // seconds
	ProductionMode  bool
	ShutdownTimeout int // seconds
}

// Server is the engine's operations API: health, metrics, account state,
// kill-switch inspection, and on-demand signal evaluation.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig

	registry    *account.Registry
	repo        *database.Repository
	killSwitch  *killswitch.Service
	generator   SignalGenerator
	executor    SignalExecutor
	store       *market.MemoryStore
	equityCache *cache.EquityCache
	bus         *events.EventBus
	logger      zerolog.Logger
}

// NewServer creates the ops API server. repo, killSwitch, and executor may
// be nil when the engine runs degraded; the affected routes then report
// unavailability instead of panicking.
func NewServer(
	config ServerConfig,
	registry *account.Registry,
	repo *database.Repository,
	ks *killswitch.Service,
	generator SignalGenerator,
	executor SignalExecutor,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if config.AllowedOrigins == "" || config.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(config.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:     router,
		config:     config,
		registry:   registry,
		repo:       repo,
		killSwitch: ks,
		generator:  generator,
		executor:   executor,
		logger:     logger.With().Str("component", "api").Logger(),
	}
	server.setupRoutes()
	return server
}

// WithMarketStore attaches the candle store served by the ingestion
// endpoint.
func (s *Server) WithMarketStore(store *market.MemoryStore) *Server {
	s.store = store
	return s
}

// WithEquityCache attaches the equity cache updated on equity ingestion.
func (s *Server) WithEquityCache(ec *cache.EquityCache) *Server {
	s.equityCache = ec
	return s
}

// WithEventBus attaches the event bus served by the events endpoint.
func (s *Server) WithEventBus(bus *events.EventBus) *Server {
	s.bus = bus
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/accounts", s.handleListAccounts)
		v1.GET("/accounts/:id", s.handleGetAccount)
		v1.POST("/accounts/:id/pause", s.handlePauseAccount)
		v1.POST("/accounts/:id/resume", s.handleResumeAccount)
		v1.GET("/accounts/:id/killswitch", s.handleKillSwitchState)
		v1.GET("/accounts/:id/decisions", s.handleRecentDecisions)

		v1.POST("/signals/evaluate", s.handleEvaluateSignal)
		v1.POST("/signals/execute", s.handleExecuteSignal)

		v1.POST("/candles", s.handleIngestCandles)
		v1.POST("/equity", s.handleIngestEquity)

		v1.GET("/events", s.handleRecentEvents)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
