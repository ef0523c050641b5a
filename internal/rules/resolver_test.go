package rules

import (
	"testing"
	"time"
)

// 2026-08-26 is a Wednesday.
var (
	wednesday10 = time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	friday23    = time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC)
)

func testResolver() *Resolver {
	return NewResolver(Config{Location: time.UTC})
}

func paidSegment() SegmentSnapshot {
	return SegmentSnapshot{ID: "seg-1", Side: SideLeft, ZoneCode: "Z1", TariffClass: "city-center", Type: TypePaid}
}

// Tariff schedule Sunday-Thursday 08:00-19:00.
func cityTariff() []Window {
	return []Window{{
		ID:      100,
		Days:    Days(time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday),
		Start:   8 * 60,
		End:     19 * 60,
		Enabled: true,
		Kind:    KindPaid,
		Scope:   ScopeTariff,
	}}
}

func TestResolve_TariffPaidWithEndOfWindow(t *testing.T) {
	r := testResolver()

	res := r.Resolve(paidSegment(), nil, cityTariff(), wednesday10, true)

	if res.Status != StatusPaid {
		t.Fatalf("status = %s, want %s", res.Status, StatusPaid)
	}
	if res.PaidScope != ScopeTariff {
		t.Errorf("paid scope = %s, want %s", res.PaidScope, ScopeTariff)
	}
	wantNext := time.Date(2026, 8, 26, 19, 0, 0, 0, time.UTC)
	if !res.NextChange.Equal(wantNext) {
		t.Errorf("next change = %v, want %v", res.NextChange, wantNext)
	}
	if !res.AvailableUntil.IsZero() {
		t.Errorf("available until = %v, want open-ended", res.AvailableUntil)
	}
}

func TestResolve_FreeOutsideTariffHours(t *testing.T) {
	r := testResolver()
	at := time.Date(2026, 8, 26, 20, 30, 0, 0, time.UTC) // Wednesday evening

	res := r.Resolve(paidSegment(), nil, cityTariff(), at, false)

	if res.Status != StatusFree {
		t.Fatalf("status = %s, want %s", res.Status, StatusFree)
	}
	// Next paid start is Thursday 08:00.
	wantNext := time.Date(2026, 8, 27, 8, 0, 0, 0, time.UTC)
	if !res.NextChange.Equal(wantNext) {
		t.Errorf("next change = %v, want %v", res.NextChange, wantNext)
	}
	if !res.AvailableUntil.Equal(wantNext) {
		t.Errorf("available until = %v, want %v (paid start ends free availability)", res.AvailableUntil, wantNext)
	}
}

func TestResolve_ForbiddenOverridePrecedence(t *testing.T) {
	r := testResolver()
	overrides := []Window{{
		ID:      1,
		Days:    EveryDay,
		Start:   9 * 60,
		End:     12 * 60,
		Enabled: true,
		Kind:    KindForbidden,
		Scope:   ScopeOverride,
		Side:    SideBoth,
	}}

	// Tariff window is simultaneously active; Forbidden must win.
	res := r.Resolve(paidSegment(), overrides, cityTariff(), wednesday10, true)

	if res.Status != StatusForbidden {
		t.Fatalf("status = %s, want %s", res.Status, StatusForbidden)
	}
	if !res.AvailableUntil.Equal(wednesday10) {
		t.Errorf("available until = %v, want the queried instant", res.AvailableUntil)
	}
	wantNext := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	if !res.NextChange.Equal(wantNext) {
		t.Errorf("next change = %v, want forbidden end %v", res.NextChange, wantNext)
	}
}

func TestResolve_DisabledWindowsIgnored(t *testing.T) {
	r := testResolver()
	overrides := []Window{{
		ID:      1,
		Days:    EveryDay,
		AllDay:  true,
		Enabled: false,
		Kind:    KindForbidden,
		Scope:   ScopeOverride,
	}}

	res := r.Resolve(paidSegment(), overrides, cityTariff(), wednesday10, true)

	if res.Status != StatusPaid {
		t.Errorf("status = %s, want %s (disabled override must not apply)", res.Status, StatusPaid)
	}
}

func TestResolve_AllDayForbiddenSaturday(t *testing.T) {
	r := testResolver()
	overrides := []Window{{
		ID:      2,
		Days:    Days(time.Saturday),
		AllDay:  true,
		Enabled: true,
		Kind:    KindForbidden,
		Scope:   ScopeOverride,
	}}

	// Friday 23:00: the next change is the forbidden start at Saturday
	// midnight.
	res := r.Resolve(paidSegment(), overrides, cityTariff(), friday23, true)

	if res.Status != StatusFree {
		t.Fatalf("status = %s, want %s", res.Status, StatusFree)
	}
	wantNext := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	if !res.NextChange.Equal(wantNext) {
		t.Errorf("next change = %v, want %v", res.NextChange, wantNext)
	}
	if !res.AvailableUntil.Equal(wantNext) {
		t.Errorf("available until = %v, want %v", res.AvailableUntil, wantNext)
	}

	// Saturday noon: forbidden, ending at Sunday midnight.
	saturdayNoon := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	res = r.Resolve(paidSegment(), overrides, cityTariff(), saturdayNoon, true)

	if res.Status != StatusForbidden {
		t.Fatalf("status = %s, want %s", res.Status, StatusForbidden)
	}
	wantEnd := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	if !res.NextChange.Equal(wantEnd) {
		t.Errorf("next change = %v, want %v", res.NextChange, wantEnd)
	}
}

func TestResolve_MidnightCrossingForbidden(t *testing.T) {
	r := testResolver()
	overrides := []Window{{
		ID:      3,
		Days:    EveryDay,
		Start:   22 * 60,
		End:     2 * 60,
		Enabled: true,
		Kind:    KindForbidden,
		Scope:   ScopeOverride,
	}}

	res := r.Resolve(paidSegment(), overrides, nil, friday23, true)

	if res.Status != StatusForbidden {
		t.Fatalf("status = %s, want %s", res.Status, StatusForbidden)
	}
	// Active past midnight: ends Saturday 02:00.
	wantEnd := time.Date(2026, 8, 29, 2, 0, 0, 0, time.UTC)
	if !res.NextChange.Equal(wantEnd) {
		t.Errorf("next change = %v, want %v", res.NextChange, wantEnd)
	}
}

func TestResolve_PaidOverrideSideMatch(t *testing.T) {
	r := testResolver()
	overrides := []Window{{
		ID:      4,
		Days:    EveryDay,
		Start:   8 * 60,
		End:     20 * 60,
		Enabled: true,
		Kind:    KindPaid,
		Scope:   ScopeOverride,
		Side:    SideRight,
	}}

	seg := paidSegment() // left side
	res := r.Resolve(seg, overrides, nil, wednesday10, true)
	if res.Status != StatusFree {
		t.Errorf("left segment against right-side override: status = %s, want %s", res.Status, StatusFree)
	}

	seg.Side = SideRight
	res = r.Resolve(seg, overrides, nil, wednesday10, true)
	if res.Status != StatusPaid {
		t.Errorf("right segment: status = %s, want %s", res.Status, StatusPaid)
	}
	if res.PaidScope != ScopeOverride {
		t.Errorf("paid scope = %s, want %s", res.PaidScope, ScopeOverride)
	}
}

func TestResolve_DefaultStatusForUnclassifiedSegment(t *testing.T) {
	r := NewResolver(Config{Location: time.UTC, DefaultStatus: StatusPaid})
	seg := SegmentSnapshot{ID: "seg-x", Side: SideBoth, Type: TypePaid}

	res := r.Resolve(seg, nil, nil, wednesday10, true)

	if res.Status != StatusPaid {
		t.Errorf("status = %s, want configured default %s", res.Status, StatusPaid)
	}
}

func TestResolve_AvailableUntilExcludingPaid(t *testing.T) {
	r := testResolver()

	// Currently inside a paid window; with includePaid=false the
	// segment is already unavailable for free parking.
	res := r.Resolve(paidSegment(), nil, cityTariff(), wednesday10, false)
	if !res.AvailableUntil.Equal(wednesday10) {
		t.Errorf("available until = %v, want the queried instant", res.AvailableUntil)
	}
}

func TestResolve_SamePriorityTieBreaksByID(t *testing.T) {
	r := testResolver()
	overrides := []Window{
		{ID: 20, Days: EveryDay, Start: 8 * 60, End: 20 * 60, Enabled: true, Kind: KindPaid, Scope: ScopeOverride, Side: SideBoth, Priority: 3},
		{ID: 5, Days: EveryDay, AllDay: true, Enabled: true, Kind: KindPaid, Scope: ScopeOverride, Side: SideBoth, Priority: 3},
	}

	// Both active, same priority: window 5 must be selected, so the
	// next change is its all-day end, not 20:00.
	res := r.Resolve(paidSegment(), overrides, nil, wednesday10, true)
	if res.Status != StatusPaid {
		t.Fatalf("status = %s, want %s", res.Status, StatusPaid)
	}
	wantNext := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC) // horizon cap for an every-day all-day window
	if !res.NextChange.Equal(wantNext) {
		t.Errorf("next change = %v, want horizon cap %v", res.NextChange, wantNext)
	}
}

func TestResolve_NoChangeWithinHorizon(t *testing.T) {
	r := testResolver()
	seg := paidSegment()

	res := r.Resolve(seg, nil, nil, wednesday10, true)

	if res.Status != StatusFree {
		t.Fatalf("status = %s, want %s", res.Status, StatusFree)
	}
	if !res.NextChange.IsZero() {
		t.Errorf("next change = %v, want zero (nothing scheduled)", res.NextChange)
	}
	if !res.AvailableUntil.IsZero() {
		t.Errorf("available until = %v, want open-ended", res.AvailableUntil)
	}
}
