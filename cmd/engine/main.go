package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-engine/config"
	"smc-trading-engine/internal/account"
	"smc-trading-engine/internal/api"
	"smc-trading-engine/internal/cache"
	"smc-trading-engine/internal/database"
	"smc-trading-engine/internal/events"
	"smc-trading-engine/internal/execfilter"
	"smc-trading-engine/internal/execution"
	"smc-trading-engine/internal/killswitch"
	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/risk"
	sig "smc-trading-engine/internal/signal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := newLogger(cfg.Logging)
	logger.Info().Msg("starting SMC trading engine")

	registry, err := account.LoadRegistry(cfg.Execution.AccountsPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Execution.AccountsPath).Msg("failed to load accounts")
	}
	logger.Info().Int("accounts", len(registry.Accounts())).Msg("account registry loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage is optional: without it the engine runs signal-only with
	// base-context fallbacks.
	var repo *database.Repository
	db, err := database.NewDB(cfg.Database, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("database unavailable, running degraded")
	} else {
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		repo = database.NewRepository(db)
	}

	var equityCache *cache.EquityCache
	if cfg.Redis.Enabled {
		cacheSvc, err := cache.NewCacheService(cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("cache unavailable")
		} else {
			defer cacheSvc.Close()
			equityCache = cache.NewEquityCache(cacheSvc)
		}
	}

	store := market.NewMemoryStore()
	generator := newSymbolAwareGenerator(store, cfg, logger)
	bus := events.NewEventBus()

	var eventStore killswitch.EventStore
	if repo != nil {
		eventStore = repo
	}
	ks := killswitch.NewService(eventStore, cfg.Execution.MaxSpreadPips, cfg.Execution.MaxSpreadPipsPerSymbol, logger).
		WithEventBus(bus)
	if err := ks.SeedFromStore(ctx); err != nil {
		logger.Warn().Err(err).Msg("kill switch seed failed, starting clean")
	}

	filter := execfilter.New(execfilter.Config{
		MaxTradesPerDay:  cfg.Execution.MaxTradesPerDay,
		CooldownMinutes:  cfg.Execution.CooldownMinutes,
		SessionWindows:   cfg.Execution.SessionWindows,
		CheckMarketHours: cfg.Execution.CheckMarketHours,
	}, logger)

	var accountStore execution.AccountStore
	if repo != nil {
		accountStore = repo
	}
	engine := execution.NewEngine(
		registry,
		ks,
		risk.NewService(logger),
		filter,
		execution.NewBrokerClient(logger),
		accountStore,
		logger,
	)
	if equityCache != nil {
		engine.WithSnapshotCache(equityCache)
	}

	var writer execution.DecisionWriter
	if repo != nil {
		writer = repo
	}
	orchestrator := execution.NewOrchestrator(engine, registry, writer, cfg.Execution.StrategyID, logger).
		WithEventBus(bus)

	server := api.NewServer(api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ProductionMode:  !cfg.Signal.Debug,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, registry, repo, ks, generator, orchestrator, logger).
		WithMarketStore(store).
		WithEventBus(bus)
	if equityCache != nil {
		server.WithEquityCache(equityCache)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server failed")
		}
	case s := <-quit:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("engine stopped")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = zerolog.New(os.Stdout)
	if cfg.Pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return out.Level(level).With().Timestamp().Logger()
}

// symbolAwareGenerator picks the pipeline variant by the symbol's
// volatility class, which selects the session allow-list.
type symbolAwareGenerator struct {
	volatile *sig.Pipeline
	calm     *sig.Pipeline
}

func newSymbolAwareGenerator(store market.Store, cfg *config.Config, logger zerolog.Logger) *symbolAwareGenerator {
	return &symbolAwareGenerator{
		volatile: sig.NewPipeline(store, cfg.PipelineConfig(true), logger),
		calm:     sig.NewPipeline(store, cfg.PipelineConfig(false), logger),
	}
}

func (g *symbolAwareGenerator) Generate(ctx context.Context, symbol string) (*sig.Signal, *sig.Rejection, error) {
	if market.Spec(symbol).Volatile {
		return g.volatile.Generate(ctx, symbol)
	}
	return g.calm.Generate(ctx, symbol)
}
