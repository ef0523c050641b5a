package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/redis/go-redis/v9"
)

type ledgerStore struct {
	client *redis.Client
}

func budgetKey(vehicleID, anchorDate string) string {
	return fmt.Sprintf("kerbd:budget:%s:%s", vehicleID, anchorDate)
}

// EnsureDay idempotently creates a zero-usage row
func (s *ledgerStore) EnsureDay(ctx context.Context, vehicleID, anchorDate string) error {
	script := redis.NewScript(ensureBudgetDayScript)

	keys := []string{budgetKey(vehicleID, anchorDate)}
	args := []interface{}{vehicleID, anchorDate, time.Now().UTC().Format(time.RFC3339Nano)}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// GetUsed returns the minutes consumed inside one anchor day
func (s *ledgerStore) GetUsed(ctx context.Context, vehicleID, anchorDate string) (int, error) {
	data, err := s.client.HGetAll(ctx, budgetKey(vehicleID, anchorDate)).Result()
	if err != nil {
		return 0, err
	}

	if len(data) == 0 {
		return 0, storage.ErrNotFound
	}

	row, err := parseLedgerRow(data)
	if err != nil {
		return 0, err
	}
	return row.MinutesUsed, nil
}

// AddMinutes atomically increments usage, clamped at the cap, and
// returns the minutes actually applied
func (s *ledgerStore) AddMinutes(ctx context.Context, vehicleID, anchorDate string, minutes, capMinutes int) (int, error) {
	script := redis.NewScript(addBudgetMinutesScript)

	keys := []string{budgetKey(vehicleID, anchorDate)}
	args := []interface{}{vehicleID, anchorDate, minutes, capMinutes, time.Now().UTC().Format(time.RFC3339Nano)}

	applied, err := script.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return 0, err
	}
	return applied, nil
}
