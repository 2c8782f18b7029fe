package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection pool and verifies it with a ping.
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "database").Logger()
	log.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// migrations is the full idempotent schema. Every statement carries
// IF NOT EXISTS so re-running the initializer is a no-op.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS account_live_equity (
		id BIGSERIAL PRIMARY KEY,
		account_id VARCHAR(64) NOT NULL,
		broker_account VARCHAR(64),
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		balance DOUBLE PRECISION NOT NULL,
		equity DOUBLE PRECISION NOT NULL,
		floating_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		closed_pnl_today DOUBLE PRECISION NOT NULL DEFAULT 0,
		closed_pnl_week DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_drawdown_abs DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_account_live_equity_account_ts
		ON account_live_equity(account_id, timestamp DESC)`,

	`CREATE TABLE IF NOT EXISTS account_trade_decisions (
		id BIGSERIAL PRIMARY KEY,
		account_id VARCHAR(64) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		symbol VARCHAR(20) NOT NULL,
		strategy VARCHAR(100),
		decision VARCHAR(10) NOT NULL,
		risk_reason TEXT,
		filter_reason TEXT,
		kill_switch_reason TEXT,
		execution_result JSONB,
		pnl DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS idx_account_trade_decisions_account_ts
		ON account_trade_decisions(account_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_account_trade_decisions_account_symbol
		ON account_trade_decisions(account_id, symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_account_trade_decisions_account_day
		ON account_trade_decisions(account_id, DATE(timestamp))`,

	`CREATE TABLE IF NOT EXISTS account_kill_switch_events (
		id BIGSERIAL PRIMARY KEY,
		account_id VARCHAR(64) NOT NULL,
		event_type VARCHAR(20) NOT NULL,
		reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_account_kill_switch_events_account
		ON account_kill_switch_events(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_account_kill_switch_events_created
		ON account_kill_switch_events(created_at DESC)`,
}

// RunMigrations executes the schema statements. Duplicate-object races
// (SQLSTATE 42P17) from concurrent initializers are swallowed.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	for _, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "42P17" {
				db.logger.Debug().Str("code", pgErr.Code).Msg("ignoring duplicate object during migration")
				continue
			}
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	db.logger.Info().Msg("database migrations completed")
	return nil
}
