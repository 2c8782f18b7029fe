package account

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testAccounts() []AccountInfo {
	return []AccountInfo{
		{
			ID:      "acc1",
			Name:    "Gold scalper",
			Symbols: []string{"XAUUSD"},
			Enabled: true,
		},
		{
			ID:      "acc2",
			Name:    "Indices",
			Symbols: []string{"US30", "xauusd"},
			Enabled: true,
		},
		{
			ID:      "acc3",
			Name:    "Disabled",
			Symbols: []string{"XAUUSD"},
			Enabled: false,
		},
	}
}

func TestAccountsForSymbolCaseInsensitive(t *testing.T) {
	r := NewRegistry(testAccounts(), zerolog.Nop())

	got := r.AccountsForSymbol("xAuUsD")
	if len(got) != 2 {
		t.Fatalf("got %d accounts, want 2 (disabled excluded)", len(got))
	}
	if got[0].ID != "acc1" || got[1].ID != "acc2" {
		t.Errorf("got %s, %s; want acc1, acc2", got[0].ID, got[1].ID)
	}

	if got := r.AccountsForSymbol("EURUSD"); len(got) != 0 {
		t.Errorf("unknown symbol should match nothing, got %d", len(got))
	}
}

func TestPauseResume(t *testing.T) {
	r := NewRegistry(testAccounts(), zerolog.Nop())

	r.Pause("acc1", "kill switch: daily drawdown")
	st, ok := r.RuntimeState("acc1")
	if !ok || !st.Paused {
		t.Fatal("acc1 should be paused")
	}
	if st.PauseReason != "kill switch: daily drawdown" {
		t.Errorf("pause reason = %q", st.PauseReason)
	}

	r.Resume("acc1")
	st, _ = r.RuntimeState("acc1")
	if st.Paused || st.PauseReason != "" {
		t.Errorf("resume did not clear state: %+v", st)
	}
}

func TestRecordTradeAndError(t *testing.T) {
	r := NewRegistry(testAccounts(), zerolog.Nop())

	r.RecordTrade("acc1", "xauusd")
	r.RecordTrade("acc1", "XAUUSD")
	st, _ := r.RuntimeState("acc1")
	if st.TradesToday != 2 {
		t.Errorf("trades today = %d, want 2", st.TradesToday)
	}
	if _, ok := st.LastTradeAt["XAUUSD"]; !ok {
		t.Error("symbol key should be upper-cased")
	}

	r.RecordError("acc1", errors.New("connector unreachable"))
	st, _ = r.RuntimeState("acc1")
	if st.LastError != "connector unreachable" || st.ErrorCount != 1 {
		t.Errorf("error not recorded: %+v", st)
	}

	r.ResetDailyCounters()
	st, _ = r.RuntimeState("acc1")
	if st.TradesToday != 0 {
		t.Errorf("daily counter survived reset: %d", st.TradesToday)
	}
}

func TestRuntimeStateIsSnapshot(t *testing.T) {
	r := NewRegistry(testAccounts(), zerolog.Nop())
	st, _ := r.RuntimeState("acc1")
	st.LastTradeAt["XAUUSD"] = st.LastErrorAt // mutate the copy

	fresh, _ := r.RuntimeState("acc1")
	if len(fresh.LastTradeAt) != 0 {
		t.Error("mutating a snapshot must not leak into the registry")
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if len(r.Accounts()) != 0 {
		t.Errorf("registry should start empty, has %d", len(r.Accounts()))
	}
}

func TestLoadRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	doc := `[
		{"id":"acc1","name":"Gold","mt5":{"baseUrl":"http://127.0.0.1:8001","login":101},
		 "symbols":["XAUUSD"],"risk":{"riskPercent":1.0,"maxDailyLoss":200},
		 "killSwitch":{"dailyDDLimit":200,"maxConsecutiveLosses":3},"enabled":true}
	]`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRegistry(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	a, ok := r.Account("acc1")
	if !ok {
		t.Fatal("acc1 missing")
	}
	if a.MT5.BaseURL != "http://127.0.0.1:8001" || a.MT5.Login != 101 {
		t.Errorf("mt5 config = %+v", a.MT5)
	}
	if a.Risk.RiskPercent != 1.0 || a.KillSwitch.DailyDDLimit != 200 {
		t.Errorf("nested config = %+v %+v", a.Risk, a.KillSwitch)
	}
	st, _ := r.RuntimeState("acc1")
	if st.Paused || !st.Connected {
		t.Errorf("fresh state = %+v, want connected and unpaused", st)
	}
}

func TestLoadRegistryMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistry(path, zerolog.Nop()); err == nil {
		t.Error("malformed document must error")
	}
}
