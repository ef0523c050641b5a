package segments

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kerbside-labs/kerbd/internal/policy"
	"github.com/kerbside-labs/kerbd/internal/rules"
	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/rs/zerolog"
)

// Config holds provider settings
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Provider loads segment snapshots with their override and tariff
// windows, caching the assembled bundle. Rule edits reach evaluation
// after the TTL, or immediately via Invalidate.
type Provider struct {
	store  storage.SegmentStore
	cache  *expirable.LRU[string, *policy.SegmentRules]
	logger zerolog.Logger
}

// NewProvider creates a provider over a segment store
func NewProvider(store storage.SegmentStore, cfg Config, logger zerolog.Logger) *Provider {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Provider{
		store:  store,
		cache:  expirable.NewLRU[string, *policy.SegmentRules](cfg.CacheSize, nil, cfg.CacheTTL),
		logger: logger.With().Str("component", "segments").Logger(),
	}
}

// Snapshot returns a segment with its rule windows, validated and ready
// for evaluation
func (p *Provider) Snapshot(ctx context.Context, segmentID string) (*policy.SegmentRules, error) {
	if sr, ok := p.cache.Get(segmentID); ok {
		return sr, nil
	}

	rec, err := p.store.Get(ctx, segmentID)
	if err != nil {
		return nil, err
	}

	overrides, err := p.store.ListOverrides(ctx, segmentID)
	if err != nil {
		return nil, fmt.Errorf("load overrides for %s: %w", segmentID, err)
	}

	var tariff []rules.Window
	if rec.TariffClass != "" {
		tariff, err = p.store.ListTariffWindows(ctx, rec.TariffClass)
		if err != nil {
			return nil, fmt.Errorf("load tariff windows for %s: %w", rec.TariffClass, err)
		}
	}

	if err := rules.ValidateAll(overrides); err != nil {
		return nil, fmt.Errorf("segment %s: %w", segmentID, err)
	}
	if err := rules.ValidateAll(tariff); err != nil {
		return nil, fmt.Errorf("tariff %s: %w", rec.TariffClass, err)
	}

	sr := &policy.SegmentRules{
		Segment:   rec.Snapshot(),
		Overrides: overrides,
		Tariff:    tariff,
	}
	p.cache.Add(segmentID, sr)

	p.logger.Debug().
		Str("segment_id", segmentID).
		Int("overrides", len(overrides)).
		Int("tariff_windows", len(tariff)).
		Msg("Segment snapshot loaded")
	return sr, nil
}

// Invalidate drops a segment from the cache so the next snapshot hits
// storage
func (p *Provider) Invalidate(segmentID string) {
	p.cache.Remove(segmentID)
}
