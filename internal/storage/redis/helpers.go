package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kerbside-labs/kerbd/internal/rules"
	"github.com/kerbside-labs/kerbd/internal/storage"
)

// parseSegment converts a Redis hash to SegmentRecord
func parseSegment(data map[string]string) (*storage.SegmentRecord, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &storage.SegmentRecord{
		ID:          data["id"],
		Side:        rules.Side(data["side"]),
		ZoneCode:    data["zone_code"],
		TariffClass: data["tariff_class"],
		Type:        rules.ParkingType(data["type"]),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// parseSession converts a Redis hash to ParkingSession
func parseSession(data map[string]string) (*storage.ParkingSession, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startedAt, err := time.Parse(time.RFC3339Nano, data["started_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}

	plannedEndAt, err := time.Parse(time.RFC3339Nano, data["planned_end_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse planned_end_at: %w", err)
	}

	var stoppedAt *time.Time
	if raw, ok := data["stopped_at"]; ok && raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stopped_at: %w", err)
		}
		stoppedAt = &t
	}

	paidMinutes, err := strconv.Atoi(data["paid_minutes"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse paid_minutes: %w", err)
	}

	freeMinutes, err := strconv.Atoi(data["free_minutes_charged"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse free_minutes_charged: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &storage.ParkingSession{
		ID:                 data["id"],
		VehicleID:          data["vehicle_id"],
		SegmentID:          data["segment_id"],
		StartedAt:          startedAt,
		PlannedEndAt:       plannedEndAt,
		StoppedAt:          stoppedAt,
		Status:             storage.SessionStatus(data["status"]),
		PaidMinutes:        paidMinutes,
		FreeMinutesCharged: freeMinutes,
		Billable:           data["billable"] == "1",
		UsesBudget:         data["uses_budget"] == "1",
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}, nil
}

// parseLedgerRow converts a Redis hash to LedgerRow
func parseLedgerRow(data map[string]string) (*storage.LedgerRow, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	minutesUsed, err := strconv.Atoi(data["minutes_used"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse minutes_used: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &storage.LedgerRow{
		VehicleID:   data["vehicle_id"],
		AnchorDate:  data["anchor_date"],
		MinutesUsed: minutesUsed,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
