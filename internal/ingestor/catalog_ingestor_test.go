package ingestor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pakrail/internal/cache"
	"pakrail/internal/domain"
	"pakrail/internal/store"
)

type stubFetcher struct {
	trains   []domain.CatalogEntry
	stations []domain.Station
	err      error
}

func (f *stubFetcher) FetchTrains(context.Context) ([]domain.CatalogEntry, error) {
	return f.trains, f.err
}

func (f *stubFetcher) FetchStations(context.Context) ([]domain.Station, error) {
	return f.stations, nil
}

type memoryCatalogCache struct {
	snap  *cache.CatalogSnapshot
	saves int
}

func (c *memoryCatalogCache) SaveCatalog(_ context.Context, trains []domain.CatalogEntry, stations []domain.Station) error {
	c.saves++
	c.snap = &cache.CatalogSnapshot{Trains: trains, Stations: stations, Version: "test"}
	return nil
}

func (c *memoryCatalogCache) LoadCatalog(context.Context) (*cache.CatalogSnapshot, bool, error) {
	return c.snap, c.snap != nil, nil
}

func TestCatalogRefresh(t *testing.T) {
	fetcher := &stubFetcher{
		trains:   []domain.CatalogEntry{{TrainID: "9", TrainNumber: "9UP", TrainName: "Allama Iqbal Express"}},
		stations: []domain.Station{{StationID: "LHR", StationName: "Lahore Junction"}},
	}
	catalog := store.NewCatalogStore()
	mem := &memoryCatalogCache{}
	updates := 0

	ing := NewCatalogIngestor(fetcher, catalog, "0 * * * *", discardLogger())
	ing.SetCache(mem)
	ing.SetOnUpdate(func(context.Context) { updates++ })

	require.NoError(t, ing.Refresh(context.Background()))
	assert.True(t, ing.IsReady())
	assert.Equal(t, uint64(1), catalog.Version())
	assert.Equal(t, 1, mem.saves)
	assert.Equal(t, 1, updates)

	_, ok := catalog.LookupTrain("9")
	assert.True(t, ok)
}

func TestCatalogRefreshFailureKeepsLoadedCatalog(t *testing.T) {
	fetcher := &stubFetcher{trains: []domain.CatalogEntry{{TrainID: "9"}}}
	catalog := store.NewCatalogStore()
	ing := NewCatalogIngestor(fetcher, catalog, "0 * * * *", discardLogger())
	require.NoError(t, ing.Refresh(context.Background()))

	fetcher.err = errors.New("mirror down")
	assert.Error(t, ing.Refresh(context.Background()))
	assert.Equal(t, uint64(1), catalog.Version())
	_, ok := catalog.LookupTrain("9")
	assert.True(t, ok)
}

func TestCatalogRefreshFallsBackToCache(t *testing.T) {
	catalog := store.NewCatalogStore()
	mem := &memoryCatalogCache{snap: &cache.CatalogSnapshot{
		Trains: []domain.CatalogEntry{{TrainID: "41", TrainName: "Karakoram Express"}},
	}}
	ing := NewCatalogIngestor(&stubFetcher{err: errors.New("mirror down")}, catalog, "0 * * * *", discardLogger())
	ing.SetCache(mem)

	err := ing.Refresh(context.Background())
	assert.Error(t, err)
	assert.True(t, ing.IsReady())
	entry, ok := catalog.LookupTrain("41")
	require.True(t, ok)
	assert.Equal(t, "Karakoram Express", entry.TrainName)
}

func TestCatalogStartRejectsBadSchedule(t *testing.T) {
	ing := NewCatalogIngestor(&stubFetcher{}, store.NewCatalogStore(), "every now and then", discardLogger())
	assert.Error(t, ing.Start(context.Background()))
}
