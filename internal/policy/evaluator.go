package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/kerbside-labs/kerbd/internal/metrics"
	"github.com/kerbside-labs/kerbd/internal/rules"
	"github.com/rs/zerolog"
)

// SegmentSource supplies segment snapshots and their rule windows.
// Implemented by the segment provider; a missing segment surfaces as
// storage.ErrNotFound.
type SegmentSource interface {
	Snapshot(ctx context.Context, segmentID string) (*SegmentRules, error)
}

// Config holds evaluator settings.
type Config struct {
	// MinParking is the shortest stay worth offering; a boundary closer
	// than this turns Free/Paid into Limited.
	MinParking time.Duration
}

// Evaluator runs the full evaluation pipeline: resolve temporal status,
// gate legality, price the stay, merge boundaries, classify.
type Evaluator struct {
	resolver   *rules.Resolver
	segments   SegmentSource
	budget     BudgetReader
	clock      Clock
	minParking time.Duration
	logger     zerolog.Logger
}

// NewEvaluator wires the pipeline. The budget reader may be nil, in
// which case daily-budget pricing degrades to the paid tariff.
func NewEvaluator(resolver *rules.Resolver, segments SegmentSource, budget BudgetReader, cfg Config, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		resolver:   resolver,
		segments:   segments,
		budget:     budget,
		clock:      RealClock{},
		minParking: cfg.MinParking,
		logger:     logger.With().Str("component", "policy").Logger(),
	}
}

// SetClock sets the clock used when no explicit instant is supplied
// (for testing).
func (e *Evaluator) SetClock(clock Clock) {
	e.clock = clock
}

// EvaluateSegment answers the compound question for one segment: what
// is parking here like at the given instant (zero means now), for this
// permit holder, and how does that evolve.
func (e *Evaluator) EvaluateSegment(ctx context.Context, segmentID string, at time.Time, permit PermitContext) (*Evaluation, error) {
	if at.IsZero() {
		at = e.clock.Now()
	}

	sr, err := e.segments.Snapshot(ctx, segmentID)
	if err != nil {
		return nil, fmt.Errorf("load segment %s: %w", segmentID, err)
	}
	seg := sr.Segment

	res := e.resolver.Resolve(seg, sr.Overrides, sr.Tariff, at, true)
	paidActive := res.Status == rules.StatusPaid
	forbiddenActive := res.Status == rules.StatusForbidden

	// On privileged segments the active Forbidden window is the
	// enforcement signal, and qualifying permits park through it.
	// Elsewhere a Forbidden window blocks everyone.
	legal := IsLegalNow(seg.Type, seg.ZoneCode, permit, forbiddenActive)
	if forbiddenActive && seg.Type != rules.TypePrivileged {
		legal = false
	}
	if !legal {
		ev := &Evaluation{
			SegmentID:      segmentID,
			Status:         res.Status,
			Group:          GroupRestricted,
			Reason:         ReasonForbiddenWindow,
			AvailableFrom:  res.NextChange,
			AvailableUntil: res.AvailableUntil,
			NextChange:     res.NextChange,
		}
		if seg.Type == rules.TypePrivileged {
			ev.Reason = ReasonPrivileged
		}
		metrics.EvaluationsTotal.WithLabelValues(string(GroupRestricted)).Inc()
		return ev, nil
	}

	payment, err := DecidePayment(ctx, seg, permit, paidActive, e.budget, at)
	if err != nil {
		return nil, err
	}

	merged := MergeBoundary(at, res.NextChange, payment)
	group := Classify(true, payment, at, merged, e.minParking)

	availableUntil := res.AvailableUntil
	if forbiddenActive {
		// The enforcement window does not bind a qualifying permit.
		availableUntil = time.Time{}
	}

	ev := &Evaluation{
		SegmentID:           segmentID,
		Status:              res.Status,
		Group:               group,
		Reason:              payment.Reason,
		PayNow:              payment.Price == PricePaid,
		PayLater:            e.payLater(ctx, sr, permit, payment, merged),
		AvailableUntil:      availableUntil,
		NextChange:          merged,
		FreeBudgetRemaining: payment.BudgetRemaining,
	}

	metrics.EvaluationsTotal.WithLabelValues(string(group)).Inc()
	e.logger.Debug().
		Str("segment_id", segmentID).
		Time("at", at).
		Str("status", string(res.Status)).
		Str("group", string(group)).
		Str("reason", string(payment.Reason)).
		Msg("Segment evaluated")
	return ev, nil
}

// payLater re-runs the pipeline at the merged boundary to answer "will
// this stay start costing money". When the boundary is the budget
// running out, the budget is excluded from the hypothetical query.
func (e *Evaluator) payLater(ctx context.Context, sr *SegmentRules, permit PermitContext, now PaymentDecision, boundary time.Time) bool {
	if boundary.IsZero() || now.Price == PricePaid {
		return false
	}
	res := e.resolver.Resolve(sr.Segment, sr.Overrides, sr.Tariff, boundary, true)
	if res.Status != rules.StatusPaid {
		return false
	}
	budget := e.budget
	if now.Reason == ReasonPermitDailyBudget {
		budget = nil
	}
	later, err := DecidePayment(ctx, sr.Segment, permit, true, budget, boundary)
	if err != nil {
		e.logger.Warn().Err(err).Str("segment_id", sr.Segment.ID).Msg("Hypothetical payment query failed")
		return false
	}
	return later.Price == PricePaid
}
