package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/rs/zerolog"
)

// Config holds ledger settings.
type Config struct {
	CapMinutes int
	AnchorHour int
	Location   *time.Location
}

// Ledger tracks each vehicle's free-minute allowance inside the
// 08:00-anchored accounting day. All mutation goes through the storage
// backend's clamped increment, never application-level read-then-write.
type Ledger struct {
	store      storage.LedgerStore
	capMinutes int
	anchorHour int
	loc        *time.Location
	logger     zerolog.Logger
}

// New creates a ledger over a storage backend.
func New(store storage.LedgerStore, cfg Config, logger zerolog.Logger) *Ledger {
	if cfg.CapMinutes <= 0 {
		cfg.CapMinutes = DefaultDailyCapMinutes
	}
	if cfg.AnchorHour <= 0 {
		cfg.AnchorHour = DefaultAnchorHour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Ledger{
		store:      store,
		capMinutes: cfg.CapMinutes,
		anchorHour: cfg.AnchorHour,
		loc:        cfg.Location,
		logger:     logger.With().Str("component", "ledger").Logger(),
	}
}

// CapMinutes returns the per-day allowance.
func (l *Ledger) CapMinutes() int {
	return l.capMinutes
}

// AnchorDateFor maps an instant onto its accounting day.
func (l *Ledger) AnchorDateFor(t time.Time) time.Time {
	return AnchorDateFor(t, l.anchorHour, l.loc)
}

// EnsureDay idempotently creates the zero-usage row for a vehicle's
// anchor day.
func (l *Ledger) EnsureDay(ctx context.Context, vehicleID string, anchorDate time.Time) error {
	if err := l.store.EnsureDay(ctx, vehicleID, DateKey(anchorDate)); err != nil {
		return fmt.Errorf("ensure ledger day %s/%s: %w", vehicleID, DateKey(anchorDate), err)
	}
	return nil
}

// Remaining returns the free minutes left at the given instant's anchor
// day. A vehicle with no row yet has the full allowance.
func (l *Ledger) Remaining(ctx context.Context, vehicleID string, at time.Time) (int, error) {
	date := DateKey(l.AnchorDateFor(at))
	used, err := l.store.GetUsed(ctx, vehicleID, date)
	if errors.Is(err, storage.ErrNotFound) {
		return l.capMinutes, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read ledger %s/%s: %w", vehicleID, date, err)
	}
	remaining := l.capMinutes - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Charges splits [start, end) at anchor-day boundaries into per-day
// clamped increments, ready to apply atomically alongside a session
// transition. An empty or inverted interval yields nil.
func (l *Ledger) Charges(vehicleID string, start, end time.Time) []storage.BudgetCharge {
	spans := SliceByAnchorBoundary(start, end, l.anchorHour, l.loc)
	charges := make([]storage.BudgetCharge, 0, len(spans))
	for _, sp := range spans {
		minutes := sp.Minutes()
		if minutes == 0 {
			continue
		}
		charges = append(charges, storage.BudgetCharge{
			VehicleID:  vehicleID,
			AnchorDate: DateKey(AnchorDateFor(sp.Start, l.anchorHour, l.loc)),
			Minutes:    minutes,
		})
	}
	return charges
}

// Consume charges the interval [start, end) against the vehicle's
// budget, one clamped increment per anchor day. It returns the minutes
// actually absorbed by the allowance. end <= start is a no-op.
func (l *Ledger) Consume(ctx context.Context, vehicleID string, start, end time.Time) (int, error) {
	applied := 0
	for _, c := range l.Charges(vehicleID, start, end) {
		n, err := l.store.AddMinutes(ctx, c.VehicleID, c.AnchorDate, c.Minutes, l.capMinutes)
		if err != nil {
			return applied, fmt.Errorf("charge ledger %s/%s: %w", c.VehicleID, c.AnchorDate, err)
		}
		applied += n
	}
	if applied > 0 {
		l.logger.Debug().
			Str("vehicle_id", vehicleID).
			Int("minutes", applied).
			Msg("Budget minutes consumed")
	}
	return applied, nil
}
