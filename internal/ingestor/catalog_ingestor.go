package ingestor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pakrail/internal/cache"
	"pakrail/internal/domain"
	"pakrail/internal/observability"
	"pakrail/internal/store"
)

// CatalogFetcher reads the static catalog from its origin.
type CatalogFetcher interface {
	FetchTrains(ctx context.Context) ([]domain.CatalogEntry, error)
	FetchStations(ctx context.Context) ([]domain.Station, error)
}

// CatalogCache persists the last good catalog across restarts.
type CatalogCache interface {
	SaveCatalog(ctx context.Context, trains []domain.CatalogEntry, stations []domain.Station) error
	LoadCatalog(ctx context.Context) (*cache.CatalogSnapshot, bool, error)
}

// CatalogIngestor loads the static catalog at startup and refreshes it on a
// cron schedule. A failed refresh keeps the catalog already in the store.
type CatalogIngestor struct {
	fetcher  CatalogFetcher
	store    *store.CatalogStore
	cache    CatalogCache
	schedule string
	logger   *slog.Logger
	onUpdate func(context.Context)

	refreshMu sync.Mutex

	ready   bool
	readyMu sync.RWMutex
}

func NewCatalogIngestor(fetcher CatalogFetcher, store *store.CatalogStore, schedule string, logger *slog.Logger) *CatalogIngestor {
	return &CatalogIngestor{
		fetcher:  fetcher,
		store:    store,
		schedule: schedule,
		logger:   logger.With("component", "catalog_ingestor"),
	}
}

// SetCache enables the redis-backed catalog fallback.
func (i *CatalogIngestor) SetCache(c CatalogCache) {
	i.cache = c
}

func (i *CatalogIngestor) SetOnUpdate(fn func(context.Context)) {
	i.onUpdate = fn
}

// Start loads the catalog and then refreshes it on schedule until ctx is done.
func (i *CatalogIngestor) Start(ctx context.Context) error {
	if err := i.Refresh(ctx); err != nil {
		i.logger.Error("initial catalog load failed", "error", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(i.schedule, func() {
		i.logger.Info("running scheduled catalog refresh")
		if err := i.Refresh(ctx); err != nil {
			i.logger.Error("scheduled catalog refresh failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling catalog refresh %q: %w", i.schedule, err)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Refresh fetches trains and stations and swaps them into the store. When
// the origin fails and no catalog is loaded yet, the cached one is used.
func (i *CatalogIngestor) Refresh(ctx context.Context) error {
	i.refreshMu.Lock()
	defer i.refreshMu.Unlock()

	start := time.Now()
	trains, stations, err := i.fetch(ctx)
	if err != nil {
		observability.CatalogRefreshes.WithLabelValues("error").Inc()
		if !i.store.IsLoaded() {
			if cacheErr := i.loadFromCache(ctx); cacheErr != nil {
				return errors.Join(err, cacheErr)
			}
		}
		return err
	}

	i.store.UpdateAll(trains, stations)
	observability.CatalogRefreshes.WithLabelValues("ok").Inc()
	i.setReady(true)

	if i.cache != nil {
		if err := i.cache.SaveCatalog(ctx, trains, stations); err != nil {
			i.logger.Warn("failed to cache catalog", "error", err)
		}
	}
	if i.onUpdate != nil {
		i.onUpdate(ctx)
	}

	i.logger.Info("catalog refresh completed",
		"trains", len(trains),
		"stations", len(stations),
		"version", i.store.Version(),
		"duration", time.Since(start),
	)
	return nil
}

func (i *CatalogIngestor) fetch(ctx context.Context) ([]domain.CatalogEntry, []domain.Station, error) {
	var (
		wg               sync.WaitGroup
		trains           []domain.CatalogEntry
		stations         []domain.Station
		trainErr, stnErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		trains, trainErr = i.fetcher.FetchTrains(ctx)
	}()
	go func() {
		defer wg.Done()
		stations, stnErr = i.fetcher.FetchStations(ctx)
	}()
	wg.Wait()

	if err := errors.Join(trainErr, stnErr); err != nil {
		return nil, nil, err
	}
	return trains, stations, nil
}

func (i *CatalogIngestor) loadFromCache(ctx context.Context) error {
	if i.cache == nil {
		return nil
	}
	snap, found, err := i.cache.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("loading cached catalog: %w", err)
	}
	if !found {
		return nil
	}

	i.store.UpdateAll(snap.Trains, snap.Stations)
	i.setReady(true)
	i.logger.Info("loaded catalog from cache",
		"trains", len(snap.Trains),
		"stations", len(snap.Stations),
		"cached_version", snap.Version,
		"generated_at", snap.GeneratedAt,
	)
	return nil
}

func (i *CatalogIngestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

func (i *CatalogIngestor) setReady(ready bool) {
	i.readyMu.Lock()
	defer i.readyMu.Unlock()
	i.ready = ready
}
