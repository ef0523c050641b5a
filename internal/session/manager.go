package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kerbside-labs/kerbd/internal/ledger"
	"github.com/kerbside-labs/kerbd/internal/metrics"
	"github.com/kerbside-labs/kerbd/internal/policy"
	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/rs/zerolog"
)

// ErrParkingRestricted rejects a session start on a segment the permit
// holder may not park on right now.
var ErrParkingRestricted = errors.New("parking is restricted here right now")

// StartRequest describes a session to open.
type StartRequest struct {
	VehicleID    string
	SegmentID    string
	PlannedEndAt time.Time
	Permit       policy.PermitContext
}

// Manager runs the session lifecycle: evaluation-gated start, explicit
// stop. The auto-stop path lives in the Scheduler and shares the
// Settler.
type Manager struct {
	evaluator *policy.Evaluator
	sessions  storage.SessionStore
	settler   *Settler
	ledger    *ledger.Ledger
	clock     policy.Clock
	logger    zerolog.Logger
}

// NewManager wires the session lifecycle.
func NewManager(evaluator *policy.Evaluator, sessions storage.SessionStore, settler *Settler, l *ledger.Ledger, logger zerolog.Logger) *Manager {
	return &Manager{
		evaluator: evaluator,
		sessions:  sessions,
		settler:   settler,
		ledger:    l,
		clock:     policy.RealClock{},
		logger:    logger.With().Str("component", "sessions").Logger(),
	}
}

// SetClock sets the time source (for testing).
func (m *Manager) SetClock(clock policy.Clock) {
	m.clock = clock
}

// Start evaluates the segment for the permit holder and opens a session
// when parking is allowed. The payment decision at this instant is
// frozen onto the session: whether tariff minutes will cost money and
// whether the stay draws on the daily free budget.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*storage.ParkingSession, *policy.Evaluation, error) {
	if req.VehicleID == "" || req.SegmentID == "" {
		return nil, nil, fmt.Errorf("vehicle_id and segment_id are required")
	}
	now := m.clock.Now()
	if !req.PlannedEndAt.After(now) {
		return nil, nil, fmt.Errorf("planned_end_at %s is not in the future", req.PlannedEndAt.Format(time.RFC3339))
	}

	permit := req.Permit
	if permit.VehicleID == "" {
		permit.VehicleID = req.VehicleID
	}

	ev, err := m.evaluator.EvaluateSegment(ctx, req.SegmentID, now, permit)
	if err != nil {
		return nil, nil, err
	}
	if ev.Group == policy.GroupRestricted {
		return nil, ev, ErrParkingRestricted
	}

	sess := storage.ParkingSession{
		ID:           uuid.NewString(),
		VehicleID:    req.VehicleID,
		SegmentID:    req.SegmentID,
		StartedAt:    now,
		PlannedEndAt: req.PlannedEndAt,
		Status:       storage.SessionActive,
		Billable:     ev.PayNow || ev.PayLater,
		UsesBudget:   ev.Reason == policy.ReasonPermitDailyBudget,
	}

	if sess.UsesBudget {
		if err := m.ledger.EnsureDay(ctx, req.VehicleID, m.ledger.AnchorDateFor(now)); err != nil {
			return nil, nil, err
		}
	}

	if err := m.sessions.Create(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}

	m.logger.Info().
		Str("session_id", sess.ID).
		Str("vehicle_id", sess.VehicleID).
		Str("segment_id", sess.SegmentID).
		Time("planned_end_at", sess.PlannedEndAt).
		Bool("billable", sess.Billable).
		Bool("uses_budget", sess.UsesBudget).
		Msg("Session started")
	return &sess, ev, nil
}

// Stop settles a session at the current instant. Stopping an already
// settled session reports the recorded outcome without charging again.
func (m *Manager) Stop(ctx context.Context, sessionID string) (*storage.ParkingSession, *Settlement, error) {
	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	stopAt := m.clock.Now()
	// Overstayed sessions settle at their planned end, matching what the
	// scheduler would have charged.
	if stopAt.After(sess.PlannedEndAt) {
		stopAt = sess.PlannedEndAt
	}

	settlement, err := m.settler.Settle(ctx, *sess, stopAt, storage.SessionStopped)
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("user", "error").Inc()
		return nil, nil, err
	}
	metrics.SettlementsTotal.WithLabelValues("user", "settled").Inc()

	final, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return final, settlement, nil
}

// Get returns one session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*storage.ParkingSession, error) {
	return m.sessions.Get(ctx, sessionID)
}
