package killswitch

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-engine/internal/account"
	"smc-trading-engine/internal/database"
	"smc-trading-engine/internal/events"
	"smc-trading-engine/internal/metrics"
)

// EventStore persists kill-switch transitions. The database repository
// satisfies it; tests substitute an in-memory recorder.
type EventStore interface {
	AppendKillSwitchEvent(ctx context.Context, ev *database.KillSwitchEvent) error
	LatestKillSwitchEvents(ctx context.Context) (map[string]database.KillSwitchEvent, error)
}

// EvalContext is the account state the kill switch judges, queried on
// demand by the execution engine.
type EvalContext struct {
	Symbol            string
	TodayRealizedPnL  float64
	WeekRealizedPnL   float64
	ConsecutiveLosses int
	CurrentSpreadPips float64
	CurrentExposure   float64
}

// Result reports whether the account is blocked and every reason that
// fired. Unlike the risk gates, all conditions are collected.
type Result struct {
	Blocked bool
	Reasons []string
}

// Service tracks per-account kill-switch state. Transitions are append-only
// event rows; in-memory state is rebuilt from the latest row at startup.
type Service struct {
	mu     sync.Mutex
	active map[string]bool

	store             EventStore
	bus               *events.EventBus
	envMaxSpread      float64
	envMaxSpreadBySym map[string]float64
	logger            zerolog.Logger
}

// NewService creates a kill-switch service. store may be nil for pure
// in-memory operation (degraded mode).
func NewService(store EventStore, envMaxSpread float64, envMaxSpreadBySymbol map[string]float64, logger zerolog.Logger) *Service {
	return &Service{
		active:            make(map[string]bool),
		store:             store,
		envMaxSpread:      envMaxSpread,
		envMaxSpreadBySym: envMaxSpreadBySymbol,
		logger:            logger.With().Str("component", "kill-switch").Logger(),
	}
}

// WithEventBus attaches the event bus transitions are published to.
func (s *Service) WithEventBus(bus *events.EventBus) *Service {
	s.bus = bus
	return s
}

// SeedFromStore loads the latest event per account and restores the
// active flags. Missing history leaves accounts inactive.
func (s *Service) SeedFromStore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	events, err := s.store.LatestKillSwitchEvents(ctx)
	if err != nil {
		return fmt.Errorf("seed kill switch state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ev := range events {
		s.active[id] = ev.EventType == database.KillSwitchActivated
	}
	s.logger.Info().Int("accounts", len(events)).Msg("kill switch state seeded")
	return nil
}

// IsActive reports whether the account is currently blocked.
func (s *Service) IsActive(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[accountID]
}

// Evaluate checks every condition and transitions the account's state,
// appending an event row on each activation or deactivation. Evaluating
// the same inputs again yields the same result without a second row.
func (s *Service) Evaluate(ctx context.Context, acct account.AccountInfo, ec EvalContext) Result {
	cfg := acct.KillSwitch
	if !cfg.Enabled {
		return Result{}
	}
	var reasons []string

	if cfg.DailyDDLimit > 0 && math.Abs(ec.TodayRealizedPnL) >= cfg.DailyDDLimit {
		reasons = append(reasons, fmt.Sprintf("daily drawdown %.2f beyond limit %.2f", ec.TodayRealizedPnL, cfg.DailyDDLimit))
	}
	if cfg.WeeklyDDLimit > 0 && math.Abs(ec.WeekRealizedPnL) >= cfg.WeeklyDDLimit {
		reasons = append(reasons, fmt.Sprintf("weekly drawdown %.2f beyond limit %.2f", ec.WeekRealizedPnL, cfg.WeeklyDDLimit))
	}
	if cfg.MaxConsecutiveLosses > 0 && ec.ConsecutiveLosses >= cfg.MaxConsecutiveLosses {
		reasons = append(reasons, fmt.Sprintf("%d consecutive losses (limit %d)", ec.ConsecutiveLosses, cfg.MaxConsecutiveLosses))
	}
	if maxSpread := s.maxSpread(acct, ec.Symbol); maxSpread > 0 && ec.CurrentSpreadPips > maxSpread {
		reasons = append(reasons, fmt.Sprintf("spread %.1f pips above limit %.1f", ec.CurrentSpreadPips, maxSpread))
	}
	if cfg.MaxExposure > 0 && ec.CurrentExposure >= cfg.MaxExposure {
		reasons = append(reasons, fmt.Sprintf("exposure %.2f at limit %.2f", ec.CurrentExposure, cfg.MaxExposure))
	}

	blocked := len(reasons) > 0
	s.transition(ctx, acct.ID, blocked, reasons)
	return Result{Blocked: blocked, Reasons: reasons}
}

// maxSpread resolves the spread ceiling: per-symbol account override, then
// account config, then the per-symbol environment default, then the
// environment default. The comparison is strict >.
func (s *Service) maxSpread(acct account.AccountInfo, symbol string) float64 {
	symbol = strings.ToUpper(symbol)
	if v, ok := acct.KillSwitch.MaxSpreadPipsPerSymbol[symbol]; ok && v > 0 {
		return v
	}
	if acct.KillSwitch.MaxSpreadPips > 0 {
		return acct.KillSwitch.MaxSpreadPips
	}
	if v, ok := s.envMaxSpreadBySym[symbol]; ok && v > 0 {
		return v
	}
	return s.envMaxSpread
}

// transition flips the in-memory flag and appends the event row when the
// state actually changes.
func (s *Service) transition(ctx context.Context, accountID string, blocked bool, reasons []string) {
	s.mu.Lock()
	was := s.active[accountID]
	if was == blocked {
		s.mu.Unlock()
		return
	}
	s.active[accountID] = blocked
	s.mu.Unlock()

	eventType := database.KillSwitchDeactivated
	reason := "all conditions cleared"
	if blocked {
		eventType = database.KillSwitchActivated
		reason = strings.Join(reasons, "; ")
	}
	s.logger.Warn().
		Str("account", accountID).
		Str("event", eventType).
		Str("reason", reason).
		Msg("kill switch transition")
	metrics.KillSwitchTransitions.WithLabelValues(accountID, eventType).Inc()
	if s.bus != nil {
		busEvent := events.EventKillSwitchDeactivated
		if blocked {
			busEvent = events.EventKillSwitchActivated
		}
		s.bus.Publish(busEvent, map[string]interface{}{
			"account": accountID,
			"reason":  reason,
		})
	}

	if s.store == nil {
		return
	}
	ev := &database.KillSwitchEvent{
		AccountID: accountID,
		EventType: eventType,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendKillSwitchEvent(ctx, ev); err != nil {
		// Persistence is best-effort; in-memory state already flipped.
		s.logger.Error().Err(err).Str("account", accountID).Msg("failed to append kill switch event")
	}
}
