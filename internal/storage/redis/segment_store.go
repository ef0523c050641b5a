package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kerbside-labs/kerbd/internal/rules"
	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/redis/go-redis/v9"
)

type segmentStore struct {
	client *redis.Client
}

func segmentHashKey(id string) string {
	return fmt.Sprintf("kerbd:segment:%s", id)
}

func overridesKey(segmentID string) string {
	return fmt.Sprintf("kerbd:segment:%s:overrides", segmentID)
}

func tariffKey(tariffClass string) string {
	return fmt.Sprintf("kerbd:tariff:%s:windows", tariffClass)
}

// Get retrieves a segment record by ID
func (s *segmentStore) Get(ctx context.Context, id string) (*storage.SegmentRecord, error) {
	data, err := s.client.HGetAll(ctx, segmentHashKey(id)).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return parseSegment(data)
}

// Put creates or replaces a segment record
func (s *segmentStore) Put(ctx context.Context, seg storage.SegmentRecord) error {
	now := time.Now().UTC()
	created := seg.CreatedAt
	if created.IsZero() {
		created = now
	}

	return s.client.HSet(ctx, segmentHashKey(seg.ID),
		"id", seg.ID,
		"side", string(seg.Side),
		"zone_code", seg.ZoneCode,
		"tariff_class", seg.TariffClass,
		"type", string(seg.Type),
		"created_at", created.Format(time.RFC3339Nano),
		"updated_at", now.Format(time.RFC3339Nano),
	).Err()
}

// ListOverrides returns a segment's override windows
func (s *segmentStore) ListOverrides(ctx context.Context, segmentID string) ([]rules.Window, error) {
	return s.listWindows(ctx, overridesKey(segmentID))
}

// PutOverride creates or replaces one override window
func (s *segmentStore) PutOverride(ctx context.Context, segmentID string, w rules.Window) error {
	return s.putWindow(ctx, overridesKey(segmentID), w)
}

// ListTariffWindows returns a tariff class's paid windows
func (s *segmentStore) ListTariffWindows(ctx context.Context, tariffClass string) ([]rules.Window, error) {
	return s.listWindows(ctx, tariffKey(tariffClass))
}

// PutTariffWindow creates or replaces one tariff window
func (s *segmentStore) PutTariffWindow(ctx context.Context, tariffClass string, w rules.Window) error {
	return s.putWindow(ctx, tariffKey(tariffClass), w)
}

// Windows live as JSON values in a hash keyed by window ID, so a Put
// replaces exactly one window and a List is a single HGETALL.
func (s *segmentStore) putWindow(ctx context.Context, key string, w rules.Window) error {
	if err := w.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal window %d: %w", w.ID, err)
	}

	return s.client.HSet(ctx, key, strconv.FormatInt(w.ID, 10), payload).Err()
}

func (s *segmentStore) listWindows(ctx context.Context, key string) ([]rules.Window, error) {
	data, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	windows := make([]rules.Window, 0, len(data))
	for field, payload := range data {
		var w rules.Window
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			return nil, fmt.Errorf("unmarshal window %s: %w", field, err)
		}
		windows = append(windows, w)
	}

	return windows, nil
}
