// Package circuit implements a per-endpoint circuit breaker used by the
// broker client to stop hammering a connector that keeps failing at the
// transport level. Broker-side rejections (4xx) are valid answers and do
// not count as failures.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState is the breaker's lifecycle state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // normal operation
	StateOpen     BreakerState = "open"      // calls fail fast
	StateHalfOpen BreakerState = "half_open" // one probe call allowed
)

// Config holds the breaker thresholds.
type Config struct {
	Enabled             bool
	FailureThreshold    int           // consecutive transport failures before opening
	Cooldown            time.Duration // open duration before a probe is allowed
	HalfOpenMaxInFlight int           // probes allowed in half-open
}

// DefaultConfig returns the thresholds used for MT5 connectors.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		FailureThreshold:    5,
		Cooldown:            30 * time.Second,
		HalfOpenMaxInFlight: 1,
	}
}

// Breaker guards one endpoint.
type Breaker struct {
	mu          sync.Mutex
	cfg         Config
	state       BreakerState
	failures    int
	openedAt    time.Time
	probesInUse int
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.HalfOpenMaxInFlight <= 0 {
		cfg.HalfOpenMaxInFlight = 1
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call may proceed. When the cooldown of an open
// breaker has elapsed, a limited number of probe calls pass through in
// half-open state.
func (b *Breaker) Allow() (bool, string) {
	if !b.cfg.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, ""
	case StateOpen:
		elapsed := time.Since(b.openedAt)
		if elapsed < b.cfg.Cooldown {
			remaining := (b.cfg.Cooldown - elapsed).Round(time.Second)
			return false, fmt.Sprintf("circuit open, retry in %v", remaining)
		}
		b.state = StateHalfOpen
		b.probesInUse = 0
		fallthrough
	case StateHalfOpen:
		if b.probesInUse >= b.cfg.HalfOpenMaxInFlight {
			return false, "circuit half-open, probe in flight"
		}
		b.probesInUse++
		return true, ""
	default:
		return true, ""
	}
}

// RecordSuccess notes a completed call and closes the breaker.
func (b *Breaker) RecordSuccess() {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probesInUse = 0
}

// RecordFailure notes a transport failure, opening the breaker once the
// threshold is reached. A half-open probe failure reopens immediately.
func (b *Breaker) RecordFailure() {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.openedAt = time.Now()
		b.probesInUse = 0
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Group keys breakers by endpoint, creating them on first use.
type Group struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewGroup creates a breaker group with one shared config.
func NewGroup(cfg Config) *Group {
	return &Group{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for the key.
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[key]
	if !ok {
		b = NewBreaker(g.cfg)
		g.breakers[key] = b
	}
	return b
}
