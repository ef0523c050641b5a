package session

import (
	"context"
	"fmt"
	"time"

	"github.com/kerbside-labs/kerbd/internal/ledger"
	"github.com/kerbside-labs/kerbd/internal/metrics"
	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/rs/zerolog"
)

// Settlement is the result of finalizing a session.
type Settlement struct {
	PaidMinutes        int `json:"paid_minutes"`
	FreeMinutesCharged int `json:"free_minutes_charged"`
	RemainingToday     int `json:"remaining_today"`
}

// Settler finalizes parking sessions exactly once. The explicit-stop
// path and the auto-stop scheduler share it, so a session can never be
// counted twice: the storage backend transitions the session out of
// Active and applies the budget charges in one atomic operation.
type Settler struct {
	sessions storage.SessionStore
	ledger   *ledger.Ledger
	logger   zerolog.Logger
}

// NewSettler creates a settler.
func NewSettler(sessions storage.SessionStore, l *ledger.Ledger, logger zerolog.Logger) *Settler {
	return &Settler{
		sessions: sessions,
		ledger:   l,
		logger:   logger.With().Str("component", "settler").Logger(),
	}
}

// Settle finalizes a session at stopAt with the given terminal status.
// Budget-eligible sessions charge the daily allowance first; the
// overflow (and everything, for plain tariff sessions) becomes paid
// minutes. Settling an already-settled session returns its recorded
// split unchanged.
func (s *Settler) Settle(ctx context.Context, sess storage.ParkingSession, stopAt time.Time, status storage.SessionStatus) (*Settlement, error) {
	if status != storage.SessionStopped && status != storage.SessionAutoStopped {
		return nil, fmt.Errorf("settle session %s: %q is not a terminal status", sess.ID, status)
	}
	if stopAt.Before(sess.StartedAt) {
		stopAt = sess.StartedAt
	}

	total := ledger.Span{Start: sess.StartedAt, End: stopAt}.Minutes()
	var charges []storage.BudgetCharge
	if sess.UsesBudget {
		charges = s.ledger.Charges(sess.VehicleID, sess.StartedAt, stopAt)
	}

	totals, settled, err := s.sessions.FinalizeIfActive(ctx, sess.ID, stopAt, status, total, charges, s.ledger.CapMinutes())
	if err != nil {
		return nil, fmt.Errorf("finalize session %s: %w", sess.ID, err)
	}
	if !settled {
		// Already terminal: report the recorded outcome.
		existing, err := s.sessions.Get(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("load settled session %s: %w", sess.ID, err)
		}
		remaining, err := s.ledger.Remaining(ctx, sess.VehicleID, stopAt)
		if err != nil {
			return nil, err
		}
		return &Settlement{
			PaidMinutes:        existing.PaidMinutes,
			FreeMinutesCharged: existing.FreeMinutesCharged,
			RemainingToday:     remaining,
		}, nil
	}

	remaining, err := s.ledger.Remaining(ctx, sess.VehicleID, stopAt)
	if err != nil {
		return nil, err
	}

	if totals.FreeMinutes > 0 {
		metrics.BudgetMinutesConsumed.Add(float64(totals.FreeMinutes))
	}
	s.logger.Info().
		Str("session_id", sess.ID).
		Str("vehicle_id", sess.VehicleID).
		Str("status", string(status)).
		Int("paid_minutes", totals.PaidMinutes).
		Int("free_minutes", totals.FreeMinutes).
		Msg("Session settled")

	return &Settlement{
		PaidMinutes:        totals.PaidMinutes,
		FreeMinutesCharged: totals.FreeMinutes,
		RemainingToday:     remaining,
	}, nil
}
