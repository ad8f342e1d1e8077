package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pakrail/internal/domain"
)

func record(inner string, lat, lon float64, speed int) *domain.LiveTrainRecord {
	return &domain.LiveTrainRecord{
		OuterKey:    "9900",
		InnerKey:    inner,
		Latitude:    lat,
		Longitude:   lon,
		SpeedKmh:    speed,
		LastUpdated: time.Unix(1700000000, 0).UTC(),
		IsLive:      true,
		TileID:      "8/180/104",
	}
}

func TestApplyDeltaIdempotent(t *testing.T) {
	s := New()
	delta := []*domain.LiveTrainRecord{record("90012", 31.5, 74.3, 80), record("90013", 24.8, 67.0, 0)}

	first := s.ApplyDelta(delta)
	assert.Len(t, first, 2)
	before := s.SnapshotView()

	second := s.ApplyDelta(delta)
	assert.Empty(t, second)
	after := s.SnapshotView()

	assert.ElementsMatch(t, before, after)
	assert.Equal(t, 2, s.Count())
}

func TestUpsertKeepsLaterValue(t *testing.T) {
	s := New()
	s.ReplaceAll([]*domain.LiveTrainRecord{
		record("90012", 31.5, 74.3, 80),
		record("90012", 31.6, 74.4, 60),
	})

	require.Equal(t, 1, s.Count())
	got, ok := s.Get("90012")
	require.True(t, ok)
	assert.Equal(t, 60, got.SpeedKmh)
	assert.Equal(t, 31.6, got.Latitude)
}

func TestReplaceAllDoesNotRemove(t *testing.T) {
	s := New()
	s.ReplaceAll([]*domain.LiveTrainRecord{record("a", 30, 70, 10), record("b", 30, 70, 10)})
	s.ReplaceAll([]*domain.LiveTrainRecord{record("b", 31, 71, 20)})

	assert.Equal(t, 2, s.Count())
	_, ok := s.Get("a")
	assert.True(t, ok)
}

func TestUpsertSkipsInvalid(t *testing.T) {
	s := New()
	bad := record("x", 0, 0, 0)
	bad.InnerKey = ""
	s.ApplyDelta([]*domain.LiveTrainRecord{nil, bad})
	assert.Equal(t, 0, s.Count())
}

func TestStoredRecordsAreCopies(t *testing.T) {
	s := New()
	r := record("a", 30, 70, 10)
	r.NextStationName = domain.StringPtr("Multan")
	s.ApplyDelta([]*domain.LiveTrainRecord{r})

	r.SpeedKmh = 99
	*r.NextStationName = "changed"

	got, _ := s.Get("a")
	assert.Equal(t, 10, got.SpeedKmh)
	assert.Equal(t, "Multan", *got.NextStationName)
}

func TestPlaceholders(t *testing.T) {
	s := New()
	p := record("990101", 31, 74, 40)
	p.IsLive = false

	require.True(t, s.SetPlaceholders([]*domain.LiveTrainRecord{p}))
	assert.True(t, s.HasPlaceholders())
	assert.Equal(t, 0, s.Count())
	require.Len(t, s.SnapshotView(), 1)
	assert.False(t, s.SnapshotView()[0].IsLive)
	assert.Len(t, s.SnapshotForTiles([]string{"8/180/104"}), 1)
	assert.Empty(t, s.List(ListOptions{LiveOnly: true}))

	deltas := s.ApplyDelta([]*domain.LiveTrainRecord{record("90012", 31.5, 74.3, 80)})
	require.Len(t, deltas, 2)
	assert.Equal(t, domain.DeltaUpdate, deltas[0].Type)
	assert.Equal(t, domain.DeltaRemove, deltas[1].Type)
	assert.Equal(t, "990101", deltas[1].Key)
	assert.False(t, s.HasPlaceholders())
	view := s.SnapshotView()
	require.Len(t, view, 1)
	assert.Equal(t, "90012", view[0].InnerKey)

	assert.False(t, s.SetPlaceholders([]*domain.LiveTrainRecord{p}))
	_, ok := s.Get("990101")
	assert.False(t, ok)
}

func TestList(t *testing.T) {
	s := New()
	other := record("c", 24.8, 67.0, 0)
	other.OuterKey = "12"
	other.IsLive = false
	s.ApplyDelta([]*domain.LiveTrainRecord{record("a", 31.5, 74.3, 80), record("b", 33.6, 73.0, 50), other})

	assert.Len(t, s.List(ListOptions{}), 3)
	assert.Len(t, s.List(ListOptions{OuterKey: "9900"}), 2)
	assert.Len(t, s.List(ListOptions{LiveOnly: true}), 2)
	assert.Equal(t, 2, s.CountLive())

	bbox := &domain.BoundingBox{MinLat: 30, MaxLat: 32, MinLon: 74, MaxLon: 75}
	got := s.List(ListOptions{BBox: bbox})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].InnerKey)
}

func TestSnapshotForTilesFollowsMoves(t *testing.T) {
	s := New()
	r := record("a", 31.5, 74.3, 80)
	s.ApplyDelta([]*domain.LiveTrainRecord{r})

	moved := record("a", 24.8, 67.0, 80)
	moved.TileID = "8/175/109"
	s.ApplyDelta([]*domain.LiveTrainRecord{moved})

	assert.Empty(t, s.SnapshotForTiles([]string{"8/180/104"}))
	assert.Len(t, s.SnapshotForTiles([]string{"8/175/109", "8/175/109"}), 1)
}

func TestLastUpdatedAt(t *testing.T) {
	s := New()
	assert.True(t, s.LastUpdatedAt().IsZero())

	at := time.Date(2025, 6, 6, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }
	s.ApplyDelta([]*domain.LiveTrainRecord{record("a", 31.5, 74.3, 80)})
	assert.Equal(t, at, s.LastUpdatedAt())
}
