package policy

import (
	"time"

	"github.com/kerbside-labs/kerbd/internal/rules"
)

// PermitKind identifies the permit class attached to a request.
type PermitKind string

const (
	PermitNone         PermitKind = "none"
	PermitZoneResident PermitKind = "zone_resident"
	PermitDisability   PermitKind = "disability"
)

// PermitContext is the requester's permit state, resolved by an
// external collaborator before evaluation.
type PermitContext struct {
	Kind      PermitKind `json:"kind"`
	ZoneCode  string     `json:"zone_code,omitempty"`
	VehicleID string     `json:"vehicle_id,omitempty"`
}

// Price is the immediate cost of parking.
type Price string

const (
	PriceFree Price = "free"
	PricePaid Price = "paid"
)

// Reason explains a payment decision.
type Reason string

const (
	ReasonFreeSegment       Reason = "AfterHoursOrFreeSegment"
	ReasonAfterHours        Reason = "AfterHours"
	ReasonPrivileged        Reason = "Privileged"
	ReasonDisability        Reason = "Disability"
	ReasonPermitHomeZone    Reason = "PermitHomeZone"
	ReasonPermitDailyBudget Reason = "PermitDailyBudget"
	ReasonTariffPaid        Reason = "TariffPaid"
	ReasonForbiddenWindow   Reason = "ForbiddenWindow"
)

// Group is the final classification shown to the requester.
type Group string

const (
	GroupFree       Group = "free"
	GroupPaid       Group = "paid"
	GroupLimited    Group = "limited"
	GroupRestricted Group = "restricted"
)

// PaymentDecision is the outcome of the payment policy.
type PaymentDecision struct {
	Price  Price
	Reason Reason
	// BudgetRemaining carries the vehicle's remaining free minutes when
	// the decision rests on the daily budget; nil otherwise.
	BudgetRemaining *int
}

// Evaluation is the compound answer for a segment at an instant.
type Evaluation struct {
	SegmentID string       `json:"segment_id"`
	Status    rules.Status `json:"status"`
	Group     Group        `json:"group"`
	Reason    Reason       `json:"reason"`
	PayNow    bool         `json:"pay_now"`
	PayLater  bool         `json:"pay_later"`
	// AvailableFrom is when a currently restricted segment becomes
	// available again; zero when available now.
	AvailableFrom time.Time `json:"available_from,omitempty"`
	// AvailableUntil is when availability ends; zero when open-ended
	// within the scan horizon.
	AvailableUntil time.Time `json:"available_until,omitempty"`
	// NextChange is the merged earliest upcoming boundary.
	NextChange          time.Time `json:"next_change,omitempty"`
	FreeBudgetRemaining *int      `json:"free_budget_remaining,omitempty"`
}

// SegmentRules bundles a segment snapshot with its rule windows.
type SegmentRules struct {
	Segment   rules.SegmentSnapshot
	Overrides []rules.Window
	Tariff    []rules.Window
}
