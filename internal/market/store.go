package market

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store provides per-symbol, per-timeframe ordered candle sequences.
// Implementations must return candles sorted by StartTime ascending and
// must not hand out slices that callers can mutate underneath the store.
type Store interface {
	// Candles returns up to limit most-recent candles for the symbol and
	// timeframe, oldest first. limit <= 0 returns the full sequence.
	Candles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error)

	// LastPrice returns the close of the most recent M1 candle.
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// MemoryStore is an in-memory Store fed by the market-data ingestion
// service. It is read-only to the signal pipeline.
type MemoryStore struct {
	mu      sync.RWMutex
	candles map[string][]Candle // key: symbol|timeframe
}

// NewMemoryStore creates an empty candle store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{candles: make(map[string][]Candle)}
}

func storeKey(symbol string, tf Timeframe) string {
	return symbol + "|" + string(tf)
}

// SetCandles replaces the sequence for a symbol/timeframe. The slice is
// copied and sorted by start time.
func (s *MemoryStore) SetCandles(symbol string, tf Timeframe, candles []Candle) {
	cp := make([]Candle, len(candles))
	copy(cp, candles)
	sort.Slice(cp, func(i, j int) bool { return cp[i].StartTime.Before(cp[j].StartTime) })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles[storeKey(symbol, tf)] = cp
}

// AppendCandle appends one candle, keeping the sequence ordered. A candle
// with the same start time as the current tail replaces it (bar update).
func (s *MemoryStore) AppendCandle(c Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(c.Symbol, c.Timeframe)
	seq := s.candles[key]
	if n := len(seq); n > 0 && seq[n-1].StartTime.Equal(c.StartTime) {
		seq[n-1] = c
		return
	}
	s.candles[key] = append(seq, c)
}

// Candles implements Store.
func (s *MemoryStore) Candles(_ context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq, ok := s.candles[storeKey(symbol, tf)]
	if !ok {
		return nil, fmt.Errorf("no candles for %s %s", symbol, tf)
	}
	start := 0
	if limit > 0 && len(seq) > limit {
		start = len(seq) - limit
	}
	out := make([]Candle, len(seq)-start)
	copy(out, seq[start:])
	return out, nil
}

// LastPrice implements Store.
func (s *MemoryStore) LastPrice(_ context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq, ok := s.candles[storeKey(symbol, M1)]
	if !ok || len(seq) == 0 {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return seq[len(seq)-1].Close, nil
}
