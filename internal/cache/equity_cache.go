package cache

import (
	"context"
	"time"

	"smc-trading-engine/internal/database"
)

// EquityCache fronts the account_live_equity table with a short-TTL Redis
// layer. A cache miss or an unhealthy cache falls through to the caller's
// database query; this type never hides storage errors behind stale data.
type EquityCache struct {
	cache *CacheService
}

// NewEquityCache wraps the cache service.
func NewEquityCache(cache *CacheService) *EquityCache {
	return &EquityCache{cache: cache}
}

// Get returns the cached equity snapshot, or nil on miss or degraded cache.
func (e *EquityCache) Get(ctx context.Context, accountID string) *database.EquitySnapshot {
	if e.cache == nil || !e.cache.IsHealthy() {
		return nil
	}
	var snap database.EquitySnapshot
	if err := e.cache.GetJSON(ctx, EquityKey(accountID), &snap); err != nil {
		return nil
	}
	return &snap
}

// Put stores the snapshot. Failures are ignored: the database remains the
// source of truth.
func (e *EquityCache) Put(ctx context.Context, snap *database.EquitySnapshot) {
	if e.cache == nil || snap == nil {
		return
	}
	_ = e.cache.SetJSON(ctx, EquityKey(snap.AccountID), snap, DefaultEquityTTL)
}

// StampCooldown records the last trade time for the account/symbol pair.
func (e *EquityCache) StampCooldown(ctx context.Context, accountID, symbol string, at time.Time) {
	if e.cache == nil {
		return
	}
	_ = e.cache.Set(ctx, CooldownKey(accountID, symbol), at.UTC().Format(time.RFC3339), DefaultCooldownTTL)
}

// LastTrade returns the cached last trade time, or zero on miss.
func (e *EquityCache) LastTrade(ctx context.Context, accountID, symbol string) time.Time {
	if e.cache == nil || !e.cache.IsHealthy() {
		return time.Time{}
	}
	raw, err := e.cache.Get(ctx, CooldownKey(accountID, symbol))
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
