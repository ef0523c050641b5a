package policy

import (
	"context"
	"testing"
	"time"

	"github.com/kerbside-labs/kerbd/internal/rules"
	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/rs/zerolog"
)

type fakeSegmentSource struct {
	bundles map[string]*SegmentRules
}

func (f *fakeSegmentSource) Snapshot(ctx context.Context, segmentID string) (*SegmentRules, error) {
	sr, ok := f.bundles[segmentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return sr, nil
}

// Wednesday inside the tariff window.
var wednesday10 = time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

var cityTariff = []rules.Window{{
	ID: 1, Days: rules.EveryDay, Start: 8 * 60, End: 19 * 60,
	Enabled: true, Kind: rules.KindPaid, Scope: rules.ScopeTariff,
}}

func testEvaluator(source SegmentSource, budget BudgetReader) *Evaluator {
	resolver := rules.NewResolver(rules.Config{Location: time.UTC})
	return NewEvaluator(resolver, source, budget, Config{MinParking: 10 * time.Minute}, zerolog.Nop())
}

func TestEvaluateSegment_PaidTariff(t *testing.T) {
	source := &fakeSegmentSource{bundles: map[string]*SegmentRules{
		"seg-1": {Segment: paidSegment, Tariff: cityTariff},
	}}

	ev, err := testEvaluator(source, nil).EvaluateSegment(context.Background(), "seg-1", wednesday10, PermitContext{Kind: PermitNone})
	if err != nil {
		t.Fatalf("EvaluateSegment failed: %v", err)
	}

	if ev.Status != rules.StatusPaid {
		t.Errorf("status = %s, want paid", ev.Status)
	}
	if ev.Group != GroupPaid {
		t.Errorf("group = %s, want paid", ev.Group)
	}
	if !ev.PayNow || ev.PayLater {
		t.Errorf("pay_now/pay_later = %v/%v, want true/false", ev.PayNow, ev.PayLater)
	}
	want := time.Date(2026, 8, 26, 19, 0, 0, 0, time.UTC)
	if !ev.NextChange.Equal(want) {
		t.Errorf("next change = %v, want %v", ev.NextChange, want)
	}
}

func TestEvaluateSegment_FreeAfterHoursPaysLater(t *testing.T) {
	source := &fakeSegmentSource{bundles: map[string]*SegmentRules{
		"seg-1": {Segment: paidSegment, Tariff: cityTariff},
	}}

	evening := time.Date(2026, 8, 26, 21, 0, 0, 0, time.UTC)
	ev, err := testEvaluator(source, nil).EvaluateSegment(context.Background(), "seg-1", evening, PermitContext{Kind: PermitNone})
	if err != nil {
		t.Fatalf("EvaluateSegment failed: %v", err)
	}

	if ev.Group != GroupFree || ev.Reason != ReasonAfterHours {
		t.Errorf("group/reason = %s/%s, want free/AfterHours", ev.Group, ev.Reason)
	}
	if ev.PayNow {
		t.Error("Expected pay_now false outside the tariff window")
	}
	// The stay crosses into tomorrow's tariff window
	if !ev.PayLater {
		t.Error("Expected pay_later true: tariff resumes at 08:00")
	}
	want := time.Date(2026, 8, 27, 8, 0, 0, 0, time.UTC)
	if !ev.NextChange.Equal(want) {
		t.Errorf("next change = %v, want %v", ev.NextChange, want)
	}
}

func TestEvaluateSegment_PrivilegedRestrictsOutsiders(t *testing.T) {
	privileged := rules.SegmentSnapshot{
		ID: "seg-2", Side: rules.SideBoth, ZoneCode: "Z-04", Type: rules.TypePrivileged,
	}
	// Residents-only weekdays 08:00-19:00.
	enforcement := rules.Window{
		ID: 2, Days: rules.EveryDay, Start: 8 * 60, End: 19 * 60, Priority: 10,
		Enabled: true, Kind: rules.KindForbidden, Scope: rules.ScopeOverride,
	}
	source := &fakeSegmentSource{bundles: map[string]*SegmentRules{
		"seg-2": {Segment: privileged, Overrides: []rules.Window{enforcement}},
	}}
	e := testEvaluator(source, nil)
	ctx := context.Background()

	// Outsider during the forbidden window
	ev, err := e.EvaluateSegment(ctx, "seg-2", wednesday10, PermitContext{Kind: PermitNone})
	if err != nil {
		t.Fatalf("EvaluateSegment failed: %v", err)
	}
	if ev.Group != GroupRestricted {
		t.Errorf("group = %s, want restricted", ev.Group)
	}
	if ev.Reason != ReasonPrivileged {
		t.Errorf("reason = %s, want Privileged", ev.Reason)
	}
	lifts := time.Date(2026, 8, 26, 19, 0, 0, 0, time.UTC)
	if !ev.AvailableFrom.Equal(lifts) {
		t.Errorf("available from = %v, want window end %v", ev.AvailableFrom, lifts)
	}

	// Disability permit parks through the window for free
	ev, err = e.EvaluateSegment(ctx, "seg-2", wednesday10, PermitContext{Kind: PermitDisability})
	if err != nil {
		t.Fatalf("EvaluateSegment failed: %v", err)
	}
	if ev.Group != GroupFree || ev.PayNow {
		t.Errorf("group/pay_now = %s/%v, want free/false for disability", ev.Group, ev.PayNow)
	}
	if !ev.AvailableUntil.IsZero() {
		t.Errorf("available until = %v, want open-ended for disability", ev.AvailableUntil)
	}

	// So does a resident of the segment's zone
	ev, err = e.EvaluateSegment(ctx, "seg-2", wednesday10, PermitContext{Kind: PermitZoneResident, ZoneCode: "Z-04"})
	if err != nil {
		t.Fatalf("EvaluateSegment failed: %v", err)
	}
	if ev.Group != GroupFree || ev.PayNow {
		t.Errorf("group/pay_now = %s/%v, want free/false for home-zone resident", ev.Group, ev.PayNow)
	}

	// A resident of another zone does not qualify
	ev, err = e.EvaluateSegment(ctx, "seg-2", wednesday10, PermitContext{Kind: PermitZoneResident, ZoneCode: "Z-09"})
	if err != nil {
		t.Fatalf("EvaluateSegment failed: %v", err)
	}
	if ev.Group != GroupRestricted {
		t.Errorf("group = %s, want restricted for foreign-zone resident", ev.Group)
	}

	// Outside the window the segment opens up
	evening := time.Date(2026, 8, 26, 21, 0, 0, 0, time.UTC)
	ev, err = e.EvaluateSegment(ctx, "seg-2", evening, PermitContext{Kind: PermitNone})
	if err != nil {
		t.Fatalf("EvaluateSegment failed: %v", err)
	}
	if ev.Group != GroupFree {
		t.Errorf("group = %s, want free outside the window", ev.Group)
	}
}

func TestEvaluateSegment_PrivilegedPaidWindowDoesNotRestrict(t *testing.T) {
	privileged := rules.SegmentSnapshot{
		ID: "seg-3", Side: rules.SideBoth, ZoneCode: "Z-04",
		TariffClass: "city-center", Type: rules.TypePrivileged,
	}
	source := &fakeSegmentSource{bundles: map[string]*SegmentRules{
		"seg-3": {Segment: privileged, Tariff: cityTariff},
	}}

	// A paid window carries no enforcement: an outsider stays legal and
	// the privileged type prices the stay free.
	ev, err := testEvaluator(source, nil).EvaluateSegment(context.Background(), "seg-3", wednesday10, PermitContext{Kind: PermitNone})
	if err != nil {
		t.Fatalf("EvaluateSegment failed: %v", err)
	}
	if ev.Group != GroupFree || ev.Reason != ReasonPrivileged {
		t.Errorf("group/reason = %s/%s, want free/Privileged", ev.Group, ev.Reason)
	}
	if ev.PayNow {
		t.Error("Expected pay_now false on a privileged segment")
	}
}

func TestEvaluateSegment_BudgetBoundsTheFreeStay(t *testing.T) {
	source := &fakeSegmentSource{bundles: map[string]*SegmentRules{
		"seg-1": {Segment: paidSegment, Tariff: cityTariff},
	}}
	budget := &fakeBudget{remaining: map[string]int{"veh-1": 20}}
	permit := PermitContext{Kind: PermitZoneResident, ZoneCode: "Z-09", VehicleID: "veh-1"}

	ev, err := testEvaluator(source, budget).EvaluateSegment(context.Background(), "seg-1", wednesday10, permit)
	if err != nil {
		t.Fatalf("EvaluateSegment failed: %v", err)
	}

	if ev.Group != GroupFree || ev.Reason != ReasonPermitDailyBudget {
		t.Errorf("group/reason = %s/%s, want free/PermitDailyBudget", ev.Group, ev.Reason)
	}
	if ev.FreeBudgetRemaining == nil || *ev.FreeBudgetRemaining != 20 {
		t.Errorf("budget remaining = %v, want 20", ev.FreeBudgetRemaining)
	}
	// Budget exhaustion, not the tariff end, is the next boundary
	want := wednesday10.Add(20 * time.Minute)
	if !ev.NextChange.Equal(want) {
		t.Errorf("next change = %v, want budget exhaustion at %v", ev.NextChange, want)
	}
	// After the budget runs out the stay starts costing money
	if ev.PayNow || !ev.PayLater {
		t.Errorf("pay_now/pay_later = %v/%v, want false/true", ev.PayNow, ev.PayLater)
	}
}

func TestEvaluateSegment_ForbiddenOverride(t *testing.T) {
	seg := paidSegment
	forbidden := rules.Window{
		ID: 7, Days: rules.Days(time.Wednesday), AllDay: true, Priority: 10,
		Enabled: true, Kind: rules.KindForbidden, Scope: rules.ScopeOverride,
	}
	source := &fakeSegmentSource{bundles: map[string]*SegmentRules{
		"seg-1": {Segment: seg, Overrides: []rules.Window{forbidden}, Tariff: cityTariff},
	}}

	ev, err := testEvaluator(source, nil).EvaluateSegment(context.Background(), "seg-1", wednesday10, PermitContext{Kind: PermitNone})
	if err != nil {
		t.Fatalf("EvaluateSegment failed: %v", err)
	}

	if ev.Status != rules.StatusForbidden || ev.Group != GroupRestricted {
		t.Errorf("status/group = %s/%s, want forbidden/restricted", ev.Status, ev.Group)
	}
	if ev.Reason != ReasonForbiddenWindow {
		t.Errorf("reason = %s, want ForbiddenWindow", ev.Reason)
	}
	// The all-day Wednesday block lifts at Thursday midnight
	want := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	if !ev.AvailableFrom.Equal(want) {
		t.Errorf("available from = %v, want %v", ev.AvailableFrom, want)
	}
}

func TestEvaluateSegment_ZeroInstantUsesClock(t *testing.T) {
	source := &fakeSegmentSource{bundles: map[string]*SegmentRules{
		"seg-1": {Segment: paidSegment, Tariff: cityTariff},
	}}

	e := testEvaluator(source, nil)
	e.SetClock(&TestClock{CurrentTime: wednesday10})

	ev, err := e.EvaluateSegment(context.Background(), "seg-1", time.Time{}, PermitContext{Kind: PermitNone})
	if err != nil {
		t.Fatalf("EvaluateSegment failed: %v", err)
	}
	if ev.Group != GroupPaid {
		t.Errorf("group = %s, want paid at the injected clock instant", ev.Group)
	}
}

func TestEvaluateSegment_MissingSegment(t *testing.T) {
	source := &fakeSegmentSource{bundles: map[string]*SegmentRules{}}

	_, err := testEvaluator(source, nil).EvaluateSegment(context.Background(), "nope", wednesday10, PermitContext{Kind: PermitNone})
	if err == nil {
		t.Error("Expected error for missing segment")
	}
}
