package policy

import (
	"testing"
	"time"
)

func TestMergeBoundary(t *testing.T) {
	at := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	tariffEnd := time.Date(2026, 8, 26, 19, 0, 0, 0, time.UTC)

	t.Run("budget exhaustion tightens the boundary", func(t *testing.T) {
		remaining := 20
		payment := PaymentDecision{Price: PriceFree, Reason: ReasonPermitDailyBudget, BudgetRemaining: &remaining}

		got := MergeBoundary(at, tariffEnd, payment)
		want := at.Add(20 * time.Minute)
		if !got.Equal(want) {
			t.Errorf("boundary = %v, want %v", got, want)
		}
	})

	t.Run("budget exhaustion fills in a zero boundary", func(t *testing.T) {
		remaining := 45
		payment := PaymentDecision{Price: PriceFree, Reason: ReasonPermitDailyBudget, BudgetRemaining: &remaining}

		got := MergeBoundary(at, time.Time{}, payment)
		if !got.Equal(at.Add(45 * time.Minute)) {
			t.Errorf("boundary = %v, want %v", got, at.Add(45*time.Minute))
		}
	})

	t.Run("earlier rule boundary wins", func(t *testing.T) {
		remaining := 600
		payment := PaymentDecision{Price: PriceFree, Reason: ReasonPermitDailyBudget, BudgetRemaining: &remaining}

		got := MergeBoundary(at, tariffEnd, payment)
		if !got.Equal(tariffEnd) {
			t.Errorf("boundary = %v, want %v", got, tariffEnd)
		}
	})

	t.Run("non-budget decisions pass through", func(t *testing.T) {
		payment := PaymentDecision{Price: PricePaid, Reason: ReasonTariffPaid}

		got := MergeBoundary(at, tariffEnd, payment)
		if !got.Equal(tariffEnd) {
			t.Errorf("boundary = %v, want %v", got, tariffEnd)
		}
	})
}

func TestClassify(t *testing.T) {
	at := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	minParking := 10 * time.Minute

	tests := []struct {
		name       string
		legal      bool
		price      Price
		nextChange time.Time
		want       Group
	}{
		{"illegal is restricted", false, PriceFree, time.Time{}, GroupRestricted},
		{"free with distant boundary", true, PriceFree, at.Add(2 * time.Hour), GroupFree},
		{"paid with distant boundary", true, PricePaid, at.Add(2 * time.Hour), GroupPaid},
		{"free with no boundary", true, PriceFree, time.Time{}, GroupFree},
		{"boundary inside the minimum stay is limited", true, PriceFree, at.Add(5 * time.Minute), GroupLimited},
		{"boundary exactly at the minimum stay is limited", true, PricePaid, at.Add(minParking), GroupLimited},
		{"boundary just past the minimum stay keeps the price group", true, PricePaid, at.Add(minParking + time.Minute), GroupPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.legal, PaymentDecision{Price: tt.price}, at, tt.nextChange, minParking)
			if got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}
