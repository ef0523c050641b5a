package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kerbside-labs/kerbd/internal/storage"
)

type ledgerStore struct {
	db *sql.DB
}

// EnsureDay idempotently creates a zero-usage row.
func (s *ledgerStore) EnsureDay(ctx context.Context, vehicleID, anchorDate string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO budget_ledger (vehicle_id, anchor_date, minutes_used, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)`,
		vehicleID, anchorDate, now, now)
	if err != nil {
		return fmt.Errorf("ensure budget day: %w", err)
	}
	return nil
}

// GetUsed returns the minutes consumed inside one anchor day.
func (s *ledgerStore) GetUsed(ctx context.Context, vehicleID, anchorDate string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`SELECT minutes_used FROM budget_ledger WHERE vehicle_id = ? AND anchor_date = ?`,
		vehicleID, anchorDate).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get budget usage: %w", err)
	}
	return used, nil
}

// AddMinutes increments usage inside one transaction, clamped at the
// cap, and returns the minutes actually applied.
func (s *ledgerStore) AddMinutes(ctx context.Context, vehicleID, anchorDate string, minutes, capMinutes int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback()

	applied, err := addMinutesTx(ctx, tx, vehicleID, anchorDate, minutes, capMinutes)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ledger tx: %w", err)
	}
	return applied, nil
}

// addMinutesTx applies one clamped increment inside a caller-owned
// transaction. The clamp lives in the UPDATE expression itself, so the
// cap invariant holds regardless of how writers are pooled; the prior
// read only derives the applied delta. Shared with session settlement.
func addMinutesTx(ctx context.Context, tx *sql.Tx, vehicleID, anchorDate string, minutes, capMinutes int) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO budget_ledger (vehicle_id, anchor_date, minutes_used, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)`,
		vehicleID, anchorDate, now, now); err != nil {
		return 0, fmt.Errorf("ensure budget row: %w", err)
	}

	var before int
	if err := tx.QueryRowContext(ctx,
		`SELECT minutes_used FROM budget_ledger WHERE vehicle_id = ? AND anchor_date = ?`,
		vehicleID, anchorDate).Scan(&before); err != nil {
		return 0, fmt.Errorf("read budget usage: %w", err)
	}

	var after int
	if err := tx.QueryRowContext(ctx, `
		UPDATE budget_ledger SET minutes_used = MIN(?, minutes_used + ?), updated_at = ?
		WHERE vehicle_id = ? AND anchor_date = ?
		RETURNING minutes_used`,
		capMinutes, minutes, now, vehicleID, anchorDate).Scan(&after); err != nil {
		return 0, fmt.Errorf("update budget usage: %w", err)
	}

	return after - before, nil
}
