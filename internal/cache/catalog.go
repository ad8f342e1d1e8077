package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pakrail/internal/domain"
)

// CatalogSnapshot is the static catalog as persisted between restarts.
type CatalogSnapshot struct {
	Trains      []domain.CatalogEntry `json:"trains"`
	Stations    []domain.Station      `json:"stations"`
	Version     string                `json:"version"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// CatalogCache keeps the last good catalog in redis so name resolution
// survives a restart while the mirror is unreachable.
type CatalogCache struct {
	cache   *RedisCache
	version string
	ttl     time.Duration
	logger  *slog.Logger
}

func NewCatalogCache(cache *RedisCache, version string, ttl time.Duration, logger *slog.Logger) *CatalogCache {
	return &CatalogCache{
		cache:   cache,
		version: version,
		ttl:     ttl,
		logger:  logger.With("component", "catalog_cache"),
	}
}

func (c *CatalogCache) SaveCatalog(ctx context.Context, trains []domain.CatalogEntry, stations []domain.Station) error {
	start := time.Now()
	snap := &CatalogSnapshot{
		Trains:      trains,
		Stations:    stations,
		Version:     c.version,
		GeneratedAt: time.Now().UTC(),
	}
	if err := c.cache.SetJSONCompressed(ctx, KeyCatalog(c.version), snap, c.ttl); err != nil {
		return fmt.Errorf("saving catalog: %w", err)
	}
	if err := c.cache.SetJSON(ctx, KeyCatalogVersion, c.version, c.ttl); err != nil {
		return fmt.Errorf("saving catalog version: %w", err)
	}

	c.logger.Info("cached catalog",
		"trains", len(trains),
		"stations", len(stations),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// LoadCatalog returns the snapshot for the configured version, falling back
// to whichever version was cached last.
func (c *CatalogCache) LoadCatalog(ctx context.Context) (*CatalogSnapshot, bool, error) {
	var snap CatalogSnapshot
	found, err := c.cache.GetJSONCompressed(ctx, KeyCatalog(c.version), &snap)
	if err != nil {
		return nil, false, err
	}
	if found {
		return &snap, true, nil
	}

	var last string
	found, err = c.cache.GetJSON(ctx, KeyCatalogVersion, &last)
	if err != nil || !found || last == c.version {
		return nil, false, err
	}
	found, err = c.cache.GetJSONCompressed(ctx, KeyCatalog(last), &snap)
	if err != nil || !found {
		return nil, false, err
	}
	c.logger.Info("using catalog cached for another version", "cached", last, "configured", c.version)
	return &snap, true, nil
}
