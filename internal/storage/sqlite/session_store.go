package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kerbside-labs/kerbd/internal/storage"
)

type sessionStore struct {
	db *sql.DB
}

// Create stores a new session.
func (s *sessionStore) Create(ctx context.Context, sess storage.ParkingSession) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var stoppedAt interface{}
	if sess.StoppedAt != nil {
		stoppedAt = sess.StoppedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, vehicle_id, segment_id, started_at, planned_end_at, stopped_at,
			status, paid_minutes, free_minutes_charged, billable, uses_budget, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.VehicleID, sess.SegmentID,
		sess.StartedAt.UTC().Format(time.RFC3339Nano),
		sess.PlannedEndAt.UTC().Format(time.RFC3339Nano),
		stoppedAt,
		string(sess.Status), sess.PaidMinutes, sess.FreeMinutesCharged,
		sess.Billable, sess.UsesBudget, now, now)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (s *sessionStore) Get(ctx context.Context, id string) (*storage.ParkingSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vehicle_id, segment_id, started_at, planned_end_at, stopped_at,
			status, paid_minutes, free_minutes_charged, billable, uses_budget, created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListDueActive returns active sessions whose planned end has passed.
func (s *sessionStore) ListDueActive(ctx context.Context, now time.Time) ([]storage.ParkingSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vehicle_id, segment_id, started_at, planned_end_at, stopped_at,
			status, paid_minutes, free_minutes_charged, billable, uses_budget, created_at, updated_at
		FROM sessions
		WHERE status = ? AND planned_end_at <= ?
		ORDER BY planned_end_at`,
		string(storage.SessionActive), now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("list due sessions: %w", err)
	}
	defer rows.Close()

	var sessions []storage.ParkingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// FinalizeIfActive settles a session exactly once: the status
// transition and the clamped budget charges land in one transaction,
// guarded by the active-status check.
func (s *sessionStore) FinalizeIfActive(ctx context.Context, id string, stoppedAt time.Time, status storage.SessionStatus, totalMinutes int, charges []storage.BudgetCharge, capMinutes int) (*storage.SettlementTotals, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin settle tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	var billable bool
	err = tx.QueryRowContext(ctx,
		`SELECT status, billable FROM sessions WHERE id = ?`, id).Scan(&current, &billable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, storage.ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("read session status: %w", err)
	}
	if current != string(storage.SessionActive) {
		return nil, false, nil
	}

	free := 0
	for _, c := range charges {
		applied, err := addMinutesTx(ctx, tx, c.VehicleID, c.AnchorDate, c.Minutes, capMinutes)
		if err != nil {
			return nil, false, err
		}
		free += applied
	}

	paid := 0
	if billable {
		paid = totalMinutes - free
		if paid < 0 {
			paid = 0
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, stopped_at = ?, paid_minutes = ?, free_minutes_charged = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), stoppedAt.UTC().Format(time.RFC3339Nano), paid, free, now,
		id, string(storage.SessionActive))
	if err != nil {
		return nil, false, fmt.Errorf("finalize session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, false, err
	} else if n == 0 {
		return nil, false, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit settle tx: %w", err)
	}

	return &storage.SettlementTotals{PaidMinutes: paid, FreeMinutes: free}, true, nil
}

// scanSession reads one session row.
func scanSession(row interface{ Scan(...interface{}) error }) (*storage.ParkingSession, error) {
	var sess storage.ParkingSession
	var started, plannedEnd, created, updated, status string
	var stopped sql.NullString

	if err := row.Scan(&sess.ID, &sess.VehicleID, &sess.SegmentID, &started, &plannedEnd, &stopped,
		&status, &sess.PaidMinutes, &sess.FreeMinutesCharged, &sess.Billable, &sess.UsesBudget,
		&created, &updated); err != nil {
		return nil, err
	}

	var err error
	if sess.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if sess.PlannedEndAt, err = time.Parse(time.RFC3339Nano, plannedEnd); err != nil {
		return nil, fmt.Errorf("failed to parse planned_end_at: %w", err)
	}
	if stopped.Valid {
		t, err := time.Parse(time.RFC3339Nano, stopped.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stopped_at: %w", err)
		}
		sess.StoppedAt = &t
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	sess.Status = storage.SessionStatus(status)

	return &sess, nil
}
