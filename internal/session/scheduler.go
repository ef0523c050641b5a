package session

import (
	"context"
	"time"

	"github.com/kerbside-labs/kerbd/internal/metrics"
	"github.com/kerbside-labs/kerbd/internal/policy"
	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultSchedulerPeriod is how often overdue sessions are swept.
const DefaultSchedulerPeriod = 30 * time.Second

// Scheduler is the auto-stop background loop. Each tick snapshots the
// Active sessions whose planned end has passed and settles each one at
// its planned end (not the tick time). Sessions created after the
// snapshot wait for the next tick.
type Scheduler struct {
	sessions storage.SessionStore
	settler  *Settler
	period   time.Duration
	clock    policy.Clock
	logger   zerolog.Logger
}

// NewScheduler creates the auto-stop scheduler.
func NewScheduler(sessions storage.SessionStore, settler *Settler, period time.Duration, logger zerolog.Logger) *Scheduler {
	if period <= 0 {
		period = DefaultSchedulerPeriod
	}
	return &Scheduler{
		sessions: sessions,
		settler:  settler,
		period:   period,
		clock:    policy.RealClock{},
		logger:   logger.With().Str("component", "auto-stop").Logger(),
	}
}

// SetClock sets the clock used to snapshot due sessions (for testing).
func (s *Scheduler) SetClock(clock policy.Clock) {
	s.clock = clock
}

// Run loops until the context is cancelled. A failed settlement for one
// session is logged and skipped; the tick and the loop continue.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Dur("period", s.period).Msg("Auto-stop scheduler started")
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Auto-stop scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep. Exported so the explicit-stop path and tests can
// drive the scheduler without the timer.
func (s *Scheduler) Tick(ctx context.Context) {
	started := time.Now()
	now := s.clock.Now()

	due, err := s.sessions.ListDueActive(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list overdue sessions")
		return
	}
	metrics.DueSessions.Set(float64(len(due)))

	for _, sess := range due {
		if _, err := s.settler.Settle(ctx, sess, sess.PlannedEndAt, storage.SessionAutoStopped); err != nil {
			metrics.SettlementsTotal.WithLabelValues("auto", "error").Inc()
			s.logger.Error().
				Err(err).
				Str("session_id", sess.ID).
				Msg("Failed to auto-stop session")
			continue
		}
		metrics.SettlementsTotal.WithLabelValues("auto", "settled").Inc()
		s.logger.Info().
			Str("session_id", sess.ID).
			Time("planned_end_at", sess.PlannedEndAt).
			Msg("Session auto-stopped")
	}

	metrics.SchedulerTickDuration.Observe(time.Since(started).Seconds())
}
