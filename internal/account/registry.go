package account

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry holds the account configs and their runtime state. Config is
// immutable after load; runtime state is guarded by one coarse lock.
type Registry struct {
	mu       sync.RWMutex
	accounts []AccountInfo
	states   map[string]*AccountRuntimeState
	logger   zerolog.Logger
}

// LoadRegistry reads the accounts document from path. A missing file is
// not an error: the registry comes up empty (single-account legacy mode).
func LoadRegistry(path string, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		states: make(map[string]*AccountRuntimeState),
		logger: logger.With().Str("component", "account-registry").Logger(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Warn().Str("path", path).Msg("accounts file missing, registry starts empty")
			return r, nil
		}
		return nil, fmt.Errorf("read accounts file %s: %w", path, err)
	}

	var accounts []AccountInfo
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}
	r.install(accounts)
	r.logger.Info().Int("accounts", len(r.accounts)).Msg("accounts loaded")
	return r, nil
}

// NewRegistry builds a registry from in-memory configs, mainly for tests
// and programmatic setup.
func NewRegistry(accounts []AccountInfo, logger zerolog.Logger) *Registry {
	r := &Registry{
		states: make(map[string]*AccountRuntimeState),
		logger: logger.With().Str("component", "account-registry").Logger(),
	}
	r.install(accounts)
	return r
}

func (r *Registry) install(accounts []AccountInfo) {
	for _, a := range accounts {
		if a.ID == "" {
			r.logger.Warn().Str("name", a.Name).Msg("skipping account without id")
			continue
		}
		r.accounts = append(r.accounts, a)
		r.states[a.ID] = &AccountRuntimeState{
			Connected:   true,
			LastTradeAt: make(map[string]time.Time),
		}
	}
}

// Accounts returns all configured accounts, enabled or not.
func (r *Registry) Accounts() []AccountInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AccountInfo, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// Account looks up one account config by id.
func (r *Registry) Account(id string) (AccountInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return AccountInfo{}, false
}

// AccountsForSymbol returns the enabled accounts whose symbol list contains
// the symbol, compared case-insensitively.
func (r *Registry) AccountsForSymbol(symbol string) []AccountInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []AccountInfo
	for _, a := range r.accounts {
		if !a.Enabled {
			continue
		}
		for _, s := range a.Symbols {
			if strings.EqualFold(s, symbol) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// RuntimeState returns a snapshot of the account's runtime state.
func (r *Registry) RuntimeState(id string) (AccountRuntimeState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.states[id]
	if !ok {
		return AccountRuntimeState{}, false
	}
	snap := *st
	snap.LastTradeAt = make(map[string]time.Time, len(st.LastTradeAt))
	for k, v := range st.LastTradeAt {
		snap.LastTradeAt[k] = v
	}
	return snap, true
}

// Pause marks the account paused with a reason. Pausing an already paused
// account overwrites the reason.
func (r *Registry) Pause(id, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		return
	}
	st.Paused = true
	st.PauseReason = reason
	r.logger.Warn().Str("account", id).Str("reason", reason).Msg("account paused")
}

// Resume clears the paused flag.
func (r *Registry) Resume(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		return
	}
	st.Paused = false
	st.PauseReason = ""
	r.logger.Info().Str("account", id).Msg("account resumed")
}

// RecordTrade bumps the daily counter and stamps the symbol's last trade
// time for the cooldown filter.
func (r *Registry) RecordTrade(id, symbol string) {
	r.recordTradeAt(id, symbol, time.Now().UTC())
}

func (r *Registry) recordTradeAt(id, symbol string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		return
	}
	st.TradesToday++
	st.LastTradeAt[strings.ToUpper(symbol)] = at
}

// RecordError stamps the last error on the account.
func (r *Registry) RecordError(id string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		return
	}
	st.LastError = err.Error()
	st.LastErrorAt = time.Now().UTC()
	st.ErrorCount++
	r.logger.Error().Str("account", id).Err(err).Msg("account error recorded")
}

// UpdateConnectionStatus records whether the account's connector is
// reachable.
func (r *Registry) UpdateConnectionStatus(id string, connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		return
	}
	st.Connected = connected
}

// ResetDailyCounters zeroes the per-day trade counters, called at the NY
// day rollover.
func (r *Registry) ResetDailyCounters() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.states {
		st.TradesToday = 0
	}
}
