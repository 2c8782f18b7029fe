package database

import (
	"strings"
	"testing"
)

// Every migration statement must be idempotent so the initializer can be
// re-run against an existing schema.
func TestMigrationsAreIdempotent(t *testing.T) {
	for i, stmt := range migrations {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Errorf("migration %d is not idempotent:\n%s", i, stmt)
		}
	}
}

func TestMigrationsCoverCoreTables(t *testing.T) {
	all := strings.Join(migrations, "\n")
	for _, table := range []string{
		"account_live_equity",
		"account_trade_decisions",
		"account_kill_switch_events",
	} {
		if !strings.Contains(all, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("missing table %s", table)
		}
	}
	for _, index := range []string{
		"idx_account_live_equity_account_ts",
		"idx_account_trade_decisions_account_ts",
		"idx_account_trade_decisions_account_symbol",
		"idx_account_trade_decisions_account_day",
		"idx_account_kill_switch_events_account",
		"idx_account_kill_switch_events_created",
	} {
		if !strings.Contains(all, index) {
			t.Errorf("missing index %s", index)
		}
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Error("empty string should map to NULL")
	}
	if nullable("reason") != "reason" {
		t.Error("non-empty string should pass through")
	}
}
