package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kerbside-labs/kerbd/internal/rules"
	"github.com/kerbside-labs/kerbd/internal/storage"
)

type segmentStore struct {
	db *sql.DB
}

// Get retrieves a segment record by ID.
func (s *segmentStore) Get(ctx context.Context, id string) (*storage.SegmentRecord, error) {
	var seg storage.SegmentRecord
	var side, typ, created, updated string
	var zone, tariff sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, side, zone_code, tariff_class, type, created_at, updated_at
		FROM segments WHERE id = ?`, id).
		Scan(&seg.ID, &side, &zone, &tariff, &typ, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}

	seg.Side = rules.Side(side)
	seg.ZoneCode = zone.String
	seg.TariffClass = tariff.String
	seg.Type = rules.ParkingType(typ)
	if seg.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if seg.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &seg, nil
}

// Put creates or replaces a segment record.
func (s *segmentStore) Put(ctx context.Context, seg storage.SegmentRecord) error {
	now := time.Now().UTC()
	created := seg.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO segments (id, side, zone_code, tariff_class, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			side = excluded.side,
			zone_code = excluded.zone_code,
			tariff_class = excluded.tariff_class,
			type = excluded.type,
			updated_at = excluded.updated_at`,
		seg.ID, string(seg.Side), seg.ZoneCode, seg.TariffClass, string(seg.Type),
		created.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put segment: %w", err)
	}
	return nil
}

// ListOverrides returns a segment's override windows.
func (s *segmentStore) ListOverrides(ctx context.Context, segmentID string) ([]rules.Window, error) {
	return s.listWindows(ctx,
		`SELECT window_json FROM segment_overrides WHERE segment_id = ? ORDER BY window_id`, segmentID)
}

// PutOverride creates or replaces one override window.
func (s *segmentStore) PutOverride(ctx context.Context, segmentID string, w rules.Window) error {
	return s.putWindow(ctx, `
		INSERT INTO segment_overrides (segment_id, window_id, window_json) VALUES (?, ?, ?)
		ON CONFLICT(segment_id, window_id) DO UPDATE SET window_json = excluded.window_json`,
		segmentID, w)
}

// ListTariffWindows returns a tariff class's paid windows.
func (s *segmentStore) ListTariffWindows(ctx context.Context, tariffClass string) ([]rules.Window, error) {
	return s.listWindows(ctx,
		`SELECT window_json FROM tariff_windows WHERE tariff_class = ? ORDER BY window_id`, tariffClass)
}

// PutTariffWindow creates or replaces one tariff window.
func (s *segmentStore) PutTariffWindow(ctx context.Context, tariffClass string, w rules.Window) error {
	return s.putWindow(ctx, `
		INSERT INTO tariff_windows (tariff_class, window_id, window_json) VALUES (?, ?, ?)
		ON CONFLICT(tariff_class, window_id) DO UPDATE SET window_json = excluded.window_json`,
		tariffClass, w)
}

func (s *segmentStore) putWindow(ctx context.Context, query, owner string, w rules.Window) error {
	if err := w.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal window %d: %w", w.ID, err)
	}

	if _, err := s.db.ExecContext(ctx, query, owner, w.ID, string(payload)); err != nil {
		return fmt.Errorf("put window %d: %w", w.ID, err)
	}
	return nil
}

func (s *segmentStore) listWindows(ctx context.Context, query, owner string) ([]rules.Window, error) {
	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	defer rows.Close()

	windows := []rules.Window{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var w rules.Window
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			return nil, fmt.Errorf("unmarshal window: %w", err)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}
