package storage

import (
	"time"

	"github.com/kerbside-labs/kerbd/internal/rules"
)

// SessionStatus is the parking session state machine. Active is the
// only non-terminal state.
type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionStopped     SessionStatus = "stopped"
	SessionAutoStopped SessionStatus = "auto_stopped"
)

// SegmentRecord is the persisted projection of a parking segment.
type SegmentRecord struct {
	ID          string            `json:"id"`
	Side        rules.Side        `json:"side"`
	ZoneCode    string            `json:"zone_code,omitempty"`
	TariffClass string            `json:"tariff_class,omitempty"`
	Type        rules.ParkingType `json:"type"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Snapshot converts the record to the evaluation projection.
func (r SegmentRecord) Snapshot() rules.SegmentSnapshot {
	return rules.SegmentSnapshot{
		ID:          r.ID,
		Side:        r.Side,
		ZoneCode:    r.ZoneCode,
		TariffClass: r.TariffClass,
		Type:        r.Type,
	}
}

// ParkingSession is one parked stay. Billable says tariff minutes cost
// money; UsesBudget says the stay draws on the daily free budget first.
// Both are captured from the payment decision at session start so
// settlement never re-derives permit state.
type ParkingSession struct {
	ID                 string        `json:"id"`
	VehicleID          string        `json:"vehicle_id"`
	SegmentID          string        `json:"segment_id"`
	StartedAt          time.Time     `json:"started_at"`
	PlannedEndAt       time.Time     `json:"planned_end_at"`
	StoppedAt          *time.Time    `json:"stopped_at,omitempty"`
	Status             SessionStatus `json:"status"`
	PaidMinutes        int           `json:"paid_minutes"`
	FreeMinutesCharged int           `json:"free_minutes_charged"`
	Billable           bool          `json:"billable"`
	UsesBudget         bool          `json:"uses_budget"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// LedgerRow is one vehicle's budget usage inside one anchor day.
type LedgerRow struct {
	VehicleID   string    `json:"vehicle_id"`
	AnchorDate  string    `json:"anchor_date"`
	MinutesUsed int       `json:"minutes_used"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BudgetCharge is one clamped ledger increment applied at settlement.
type BudgetCharge struct {
	VehicleID  string
	AnchorDate string
	Minutes    int
}

// SettlementTotals is the paid/free minute split recorded by
// FinalizeIfActive.
type SettlementTotals struct {
	PaidMinutes int
	FreeMinutes int
}
