package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kerbside-labs/kerbd/internal/ledger"
	"github.com/kerbside-labs/kerbd/internal/policy"
	"github.com/kerbside-labs/kerbd/internal/rules"
	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/rs/zerolog"
)

func newLedgerFor(store *fakeStore) *ledger.Ledger {
	return ledger.New(store, ledger.Config{Location: time.UTC}, zerolog.Nop())
}

type staticSegments struct {
	bundles map[string]*policy.SegmentRules
}

func (s *staticSegments) Snapshot(ctx context.Context, segmentID string) (*policy.SegmentRules, error) {
	sr, ok := s.bundles[segmentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return sr, nil
}

var managerTariff = []rules.Window{{
	ID: 1, Days: rules.EveryDay, Start: 8 * 60, End: 19 * 60,
	Enabled: true, Kind: rules.KindPaid, Scope: rules.ScopeTariff,
}}

func testManager(t *testing.T, store *fakeStore, now time.Time) *Manager {
	t.Helper()

	segs := &staticSegments{bundles: map[string]*policy.SegmentRules{
		"seg-paid": {
			Segment: rules.SegmentSnapshot{
				ID: "seg-paid", Side: rules.SideBoth, ZoneCode: "Z-04",
				TariffClass: "city-center", Type: rules.TypePaid,
			},
			Tariff: managerTariff,
		},
		"seg-privileged": {
			Segment: rules.SegmentSnapshot{
				ID: "seg-privileged", Side: rules.SideBoth, ZoneCode: "Z-04",
				Type: rules.TypePrivileged,
			},
			// Residents-only enforcement 08:00-19:00.
			Overrides: []rules.Window{{
				ID: 9, Days: rules.EveryDay, Start: 8 * 60, End: 19 * 60, Priority: 10,
				Enabled: true, Kind: rules.KindForbidden, Scope: rules.ScopeOverride,
			}},
		},
	}}

	resolver := rules.NewResolver(rules.Config{Location: time.UTC})
	eval := policy.NewEvaluator(resolver, segs, nil, policy.Config{MinParking: 10 * time.Minute}, zerolog.Nop())
	eval.SetClock(&policy.TestClock{CurrentTime: now})

	m := NewManager(eval, store, testSettler(store), newLedgerFor(store), zerolog.Nop())
	m.SetClock(&policy.TestClock{CurrentTime: now})
	return m
}

func TestManager_StartCapturesPaymentDecision(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	m := testManager(t, store, now)

	sess, ev, err := m.Start(context.Background(), StartRequest{
		VehicleID:    "veh-1",
		SegmentID:    "seg-paid",
		PlannedEndAt: now.Add(time.Hour),
		Permit:       policy.PermitContext{Kind: policy.PermitNone},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if ev.Group != policy.GroupPaid {
		t.Errorf("group = %s, want paid", ev.Group)
	}
	if !sess.Billable {
		t.Error("Expected a billable session inside the tariff window")
	}
	if sess.UsesBudget {
		t.Error("Expected no budget use without a resident permit")
	}
	if sess.Status != storage.SessionActive {
		t.Errorf("status = %s, want active", sess.Status)
	}

	stored, err := store.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Session not persisted: %v", err)
	}
	if !stored.PlannedEndAt.Equal(now.Add(time.Hour)) {
		t.Errorf("planned end = %v, want %v", stored.PlannedEndAt, now.Add(time.Hour))
	}
}

func TestManager_StartRejectsRestricted(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	m := testManager(t, store, now)

	_, ev, err := m.Start(context.Background(), StartRequest{
		VehicleID:    "veh-1",
		SegmentID:    "seg-privileged",
		PlannedEndAt: now.Add(time.Hour),
		Permit:       policy.PermitContext{Kind: policy.PermitNone},
	})
	if !errors.Is(err, ErrParkingRestricted) {
		t.Fatalf("Expected ErrParkingRestricted, got %v", err)
	}
	if ev == nil || ev.Group != policy.GroupRestricted {
		t.Errorf("Expected the restricted evaluation alongside the error, got %+v", ev)
	}
	if len(store.sessions) != 0 {
		t.Error("Restricted start must not persist a session")
	}
}

func TestManager_StartRejectsPastPlannedEnd(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	m := testManager(t, store, now)

	_, _, err := m.Start(context.Background(), StartRequest{
		VehicleID:    "veh-1",
		SegmentID:    "seg-paid",
		PlannedEndAt: now.Add(-time.Minute),
		Permit:       policy.PermitContext{Kind: policy.PermitNone},
	})
	if err == nil {
		t.Error("Expected error for a planned end in the past")
	}
}

func TestManager_StopSettlesAtNow(t *testing.T) {
	store := newFakeStore()
	start := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	m := testManager(t, store, start)

	sess, _, err := m.Start(context.Background(), StartRequest{
		VehicleID:    "veh-1",
		SegmentID:    "seg-paid",
		PlannedEndAt: start.Add(time.Hour),
		Permit:       policy.PermitContext{Kind: policy.PermitNone},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	m.SetClock(&policy.TestClock{CurrentTime: start.Add(30 * time.Minute)})
	final, settlement, err := m.Stop(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if final.Status != storage.SessionStopped {
		t.Errorf("status = %s, want stopped", final.Status)
	}
	if settlement.PaidMinutes != 30 {
		t.Errorf("paid minutes = %d, want 30", settlement.PaidMinutes)
	}
}

func TestManager_StopAfterPlannedEndClampsToPlannedEnd(t *testing.T) {
	store := newFakeStore()
	start := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	m := testManager(t, store, start)

	sess, _, err := m.Start(context.Background(), StartRequest{
		VehicleID:    "veh-1",
		SegmentID:    "seg-paid",
		PlannedEndAt: start.Add(time.Hour),
		Permit:       policy.PermitContext{Kind: policy.PermitNone},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Stop arrives 20 minutes late
	m.SetClock(&policy.TestClock{CurrentTime: start.Add(80 * time.Minute)})
	final, settlement, err := m.Stop(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if settlement.PaidMinutes != 60 {
		t.Errorf("paid minutes = %d, want 60 (charge stops at the planned end)", settlement.PaidMinutes)
	}
	if final.StoppedAt == nil || !final.StoppedAt.Equal(start.Add(time.Hour)) {
		t.Errorf("stopped at %v, want planned end", final.StoppedAt)
	}
}

func TestManager_StopMissingSession(t *testing.T) {
	store := newFakeStore()
	m := testManager(t, store, time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC))

	_, _, err := m.Stop(context.Background(), "ghost")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
