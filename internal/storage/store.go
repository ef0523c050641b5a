package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kerbside-labs/kerbd/internal/rules"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store is the root storage interface. Backends: redis, sqlite.
type Store interface {
	Close() error
	Segments() SegmentStore
	Ledger() LedgerStore
	Sessions() SessionStore
}

// SegmentStore manages segment snapshots and their rule windows.
type SegmentStore interface {
	Get(ctx context.Context, id string) (*SegmentRecord, error)
	Put(ctx context.Context, seg SegmentRecord) error
	ListOverrides(ctx context.Context, segmentID string) ([]rules.Window, error)
	PutOverride(ctx context.Context, segmentID string, w rules.Window) error
	ListTariffWindows(ctx context.Context, tariffClass string) ([]rules.Window, error)
	PutTariffWindow(ctx context.Context, tariffClass string, w rules.Window) error
}

// LedgerStore manages daily free-budget rows keyed by vehicle and
// anchor date. AddMinutes applies the clamp used = min(cap, used+delta)
// inside the backend, so concurrent callers can never push a row past
// the cap; it returns the minutes actually absorbed.
type LedgerStore interface {
	EnsureDay(ctx context.Context, vehicleID, anchorDate string) error
	GetUsed(ctx context.Context, vehicleID, anchorDate string) (int, error)
	AddMinutes(ctx context.Context, vehicleID, anchorDate string, minutes, capMinutes int) (applied int, err error)
}

// SessionStore manages parking sessions. FinalizeIfActive is the
// exactly-once settlement primitive: it transitions the session out of
// Active and applies the budget charges in one atomic storage
// operation, reporting settled=false (with no side effects) when the
// session already left Active.
type SessionStore interface {
	Create(ctx context.Context, s ParkingSession) error
	Get(ctx context.Context, id string) (*ParkingSession, error)
	ListDueActive(ctx context.Context, now time.Time) ([]ParkingSession, error)
	FinalizeIfActive(ctx context.Context, id string, stoppedAt time.Time, status SessionStatus, totalMinutes int, charges []BudgetCharge, capMinutes int) (result *SettlementTotals, settled bool, err error)
}
