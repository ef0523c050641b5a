package policy

import (
	"time"
)

// MergeBoundary tightens the resolver's raw next-change instant with
// boundaries only the payment layer knows about: exhaustion of the
// daily free budget while parking on it. The earliest known upcoming
// event wins.
func MergeBoundary(at, nextChange time.Time, payment PaymentDecision) time.Time {
	if payment.Reason == ReasonPermitDailyBudget && payment.BudgetRemaining != nil && *payment.BudgetRemaining > 0 {
		exhaust := at.Add(time.Duration(*payment.BudgetRemaining) * time.Minute)
		if nextChange.IsZero() || exhaust.Before(nextChange) {
			return exhaust
		}
	}
	return nextChange
}

// Classify produces the final group label from the legality and payment
// outcomes and the merged boundary.
//
// Restricted: parking is illegal right now. Limited: legal, but the
// next change falls within the minimum useful parking duration.
// Otherwise the group follows the price.
func Classify(legalNow bool, payment PaymentDecision, at, nextChange time.Time, minParking time.Duration) Group {
	if !legalNow {
		return GroupRestricted
	}
	if !nextChange.IsZero() && minParking > 0 && !nextChange.After(at.Add(minParking)) {
		return GroupLimited
	}
	if payment.Price == PricePaid {
		return GroupPaid
	}
	return GroupFree
}
