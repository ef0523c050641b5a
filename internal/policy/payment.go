package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/kerbside-labs/kerbd/internal/rules"
)

// BudgetReader exposes the daily free-budget balance. Implemented by
// the ledger; consumption happens only at settlement, never here.
type BudgetReader interface {
	Remaining(ctx context.Context, vehicleID string, at time.Time) (int, error)
}

// DecidePayment determines whether the segment costs money right now.
//
// Evaluation order: a free-type segment is always free; outside an
// active paid window everything is free; privileged segments are free
// to whoever passed the legality gate; Disability permits park free;
// Zone-Resident permits park free in their home zone; visiting a
// foreign zone they run on the daily budget while it lasts; everyone
// else pays the tariff.
func DecidePayment(ctx context.Context, seg rules.SegmentSnapshot, permit PermitContext, paidActiveNow bool, budget BudgetReader, at time.Time) (PaymentDecision, error) {
	if seg.Type == rules.TypeFree {
		return PaymentDecision{Price: PriceFree, Reason: ReasonFreeSegment}, nil
	}
	if !paidActiveNow {
		return PaymentDecision{Price: PriceFree, Reason: ReasonAfterHours}, nil
	}
	if seg.Type == rules.TypePrivileged {
		return PaymentDecision{Price: PriceFree, Reason: ReasonPrivileged}, nil
	}

	switch permit.Kind {
	case PermitDisability:
		return PaymentDecision{Price: PriceFree, Reason: ReasonDisability}, nil
	case PermitZoneResident:
		if permit.ZoneCode != "" && permit.ZoneCode == seg.ZoneCode {
			return PaymentDecision{Price: PriceFree, Reason: ReasonPermitHomeZone}, nil
		}
		if budget == nil || permit.VehicleID == "" {
			return PaymentDecision{Price: PricePaid, Reason: ReasonTariffPaid}, nil
		}
		remaining, err := budget.Remaining(ctx, permit.VehicleID, at)
		if err != nil {
			return PaymentDecision{}, fmt.Errorf("read budget for vehicle %s: %w", permit.VehicleID, err)
		}
		if remaining > 0 {
			return PaymentDecision{Price: PriceFree, Reason: ReasonPermitDailyBudget, BudgetRemaining: &remaining}, nil
		}
		return PaymentDecision{Price: PricePaid, Reason: ReasonTariffPaid, BudgetRemaining: &remaining}, nil
	default:
		return PaymentDecision{Price: PricePaid, Reason: ReasonTariffPaid}, nil
	}
}
