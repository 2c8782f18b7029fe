package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Repository provides data access methods for the per-account tables.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// InsertEquitySnapshot appends one equity reading.
func (r *Repository) InsertEquitySnapshot(ctx context.Context, s *EquitySnapshot) error {
	query := `
		INSERT INTO account_live_equity
			(account_id, broker_account, timestamp, balance, equity, floating_pnl,
			 closed_pnl_today, closed_pnl_week, max_drawdown_abs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		s.AccountID, s.BrokerAccount, s.Timestamp, s.Balance, s.Equity,
		s.FloatingPnL, s.ClosedPnLToday, s.ClosedPnLWeek, s.MaxDrawdownAbs,
	).Scan(&s.ID)
}

// LatestEquity returns the most recent equity snapshot for the account, or
// nil when none has been recorded yet.
func (r *Repository) LatestEquity(ctx context.Context, accountID string) (*EquitySnapshot, error) {
	query := `
		SELECT id, account_id, broker_account, timestamp, balance, equity,
		       floating_pnl, closed_pnl_today, closed_pnl_week, max_drawdown_abs
		FROM account_live_equity
		WHERE account_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`
	s := &EquitySnapshot{}
	err := r.db.Pool.QueryRow(ctx, query, accountID).Scan(
		&s.ID, &s.AccountID, &s.BrokerAccount, &s.Timestamp, &s.Balance, &s.Equity,
		&s.FloatingPnL, &s.ClosedPnLToday, &s.ClosedPnLWeek, &s.MaxDrawdownAbs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest equity for %s: %w", accountID, err)
	}
	return s, nil
}

// InsertTradeDecision appends one decision row.
func (r *Repository) InsertTradeDecision(ctx context.Context, d *TradeDecision) error {
	query := `
		INSERT INTO account_trade_decisions
			(account_id, timestamp, symbol, strategy, decision,
			 risk_reason, filter_reason, kill_switch_reason, execution_result, pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		d.AccountID, d.Timestamp, d.Symbol, d.Strategy, d.Decision,
		nullable(d.RiskReason), nullable(d.FilterReason), nullable(d.KillSwitchReason),
		d.ExecutionResult, d.PnL,
	).Scan(&d.ID)
}

// UpdateDecisionPnL backfills the realized PnL once the trade closes.
func (r *Repository) UpdateDecisionPnL(ctx context.Context, id int64, pnl float64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE account_trade_decisions SET pnl = $2 WHERE id = $1`, id, pnl)
	return err
}

// TodayRealizedPnL sums the realized PnL of today's decisions, NY calendar
// day, for the account.
func (r *Repository) TodayRealizedPnL(ctx context.Context, accountID string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(pnl), 0)
		FROM account_trade_decisions
		WHERE account_id = $1
		  AND pnl IS NOT NULL
		  AND DATE(timestamp AT TIME ZONE 'America/New_York') =
		      DATE(NOW() AT TIME ZONE 'America/New_York')
	`
	var pnl float64
	if err := r.db.Pool.QueryRow(ctx, query, accountID).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("today pnl for %s: %w", accountID, err)
	}
	return pnl, nil
}

// WeekRealizedPnL sums the realized PnL since the start of the current NY
// calendar week (Monday).
func (r *Repository) WeekRealizedPnL(ctx context.Context, accountID string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(pnl), 0)
		FROM account_trade_decisions
		WHERE account_id = $1
		  AND pnl IS NOT NULL
		  AND DATE(timestamp AT TIME ZONE 'America/New_York') >=
		      DATE_TRUNC('week', NOW() AT TIME ZONE 'America/New_York')::date
	`
	var pnl float64
	if err := r.db.Pool.QueryRow(ctx, query, accountID).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("week pnl for %s: %w", accountID, err)
	}
	return pnl, nil
}

// TodayTradeCount counts today's TRADE decisions for the account.
func (r *Repository) TodayTradeCount(ctx context.Context, accountID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM account_trade_decisions
		WHERE account_id = $1
		  AND decision = 'TRADE'
		  AND DATE(timestamp AT TIME ZONE 'America/New_York') =
		      DATE(NOW() AT TIME ZONE 'America/New_York')
	`
	var n int
	if err := r.db.Pool.QueryRow(ctx, query, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("today trade count for %s: %w", accountID, err)
	}
	return n, nil
}

// RecentDecisionPnLs returns the realized PnL of the account's most recent
// closed trades, newest first. The kill switch uses it for the
// consecutive-losses check.
func (r *Repository) RecentDecisionPnLs(ctx context.Context, accountID string, limit int) ([]float64, error) {
	query := `
		SELECT pnl
		FROM account_trade_decisions
		WHERE account_id = $1 AND decision = 'TRADE' AND pnl IS NOT NULL
		ORDER BY timestamp DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent pnls for %s: %w", accountID, err)
	}
	defer rows.Close()

	var pnls []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		pnls = append(pnls, p)
	}
	return pnls, rows.Err()
}

// RecentDecisions returns the latest decision rows for the account.
func (r *Repository) RecentDecisions(ctx context.Context, accountID string, limit int) ([]*TradeDecision, error) {
	query := `
		SELECT id, account_id, timestamp, symbol, strategy, decision,
		       COALESCE(risk_reason, ''), COALESCE(filter_reason, ''),
		       COALESCE(kill_switch_reason, ''), execution_result, pnl
		FROM account_trade_decisions
		WHERE account_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent decisions for %s: %w", accountID, err)
	}
	defer rows.Close()

	var out []*TradeDecision
	for rows.Next() {
		d := &TradeDecision{}
		if err := rows.Scan(
			&d.ID, &d.AccountID, &d.Timestamp, &d.Symbol, &d.Strategy, &d.Decision,
			&d.RiskReason, &d.FilterReason, &d.KillSwitchReason, &d.ExecutionResult, &d.PnL,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AppendKillSwitchEvent records an activation or deactivation. Rows are
// append-only; state is reconstructed from the latest row per account.
func (r *Repository) AppendKillSwitchEvent(ctx context.Context, ev *KillSwitchEvent) error {
	query := `
		INSERT INTO account_kill_switch_events (account_id, event_type, reason, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return r.db.Pool.QueryRow(ctx, query, ev.AccountID, ev.EventType, ev.Reason, ev.CreatedAt).Scan(&ev.ID)
}

// LatestKillSwitchEvents returns the most recent event per account, used
// to seed kill-switch state at startup.
func (r *Repository) LatestKillSwitchEvents(ctx context.Context) (map[string]KillSwitchEvent, error) {
	query := `
		SELECT DISTINCT ON (account_id)
		       id, account_id, event_type, COALESCE(reason, ''), created_at
		FROM account_kill_switch_events
		ORDER BY account_id, created_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest kill switch events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]KillSwitchEvent)
	for rows.Next() {
		var ev KillSwitchEvent
		if err := rows.Scan(&ev.ID, &ev.AccountID, &ev.EventType, &ev.Reason, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out[ev.AccountID] = ev
	}
	return out, rows.Err()
}

// KillSwitchHistory returns the newest events for one account.
func (r *Repository) KillSwitchHistory(ctx context.Context, accountID string, limit int) ([]KillSwitchEvent, error) {
	query := `
		SELECT id, account_id, event_type, COALESCE(reason, ''), created_at
		FROM account_kill_switch_events
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("kill switch history for %s: %w", accountID, err)
	}
	defer rows.Close()

	var out []KillSwitchEvent
	for rows.Next() {
		var ev KillSwitchEvent
		if err := rows.Scan(&ev.ID, &ev.AccountID, &ev.EventType, &ev.Reason, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// nullable maps an empty string to NULL so reason columns stay clean.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
