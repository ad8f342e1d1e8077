package fallback

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackRecords(t *testing.T) {
	c := New()
	c.rng = rand.New(rand.NewPCG(1, 2))
	at := time.Date(2025, 6, 6, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return at }

	records := c.Fallback()
	require.Len(t, records, Size())

	keys := make(map[string]struct{})
	for i, r := range records {
		assert.False(t, r.IsLive)
		assert.True(t, r.HasValidPosition())
		assert.InDelta(t, templates[i].lat, r.Latitude, jitterDegrees+1e-6)
		assert.InDelta(t, templates[i].lon, r.Longitude, jitterDegrees+1e-6)
		assert.GreaterOrEqual(t, r.SpeedKmh, 40)
		assert.Less(t, r.SpeedKmh, 120)
		assert.GreaterOrEqual(t, r.DelayMinutes, -15)
		assert.LessOrEqual(t, r.DelayMinutes, 45)
		assert.False(t, r.LastUpdated.After(at))
		require.NotNil(t, r.ResolvedName)
		assert.Equal(t, templates[i].name, *r.ResolvedName)
		keys[r.InnerKey] = struct{}{}
	}
	assert.Len(t, keys, Size())
	assert.Equal(t, "990001", records[0].OuterKey)
	assert.Equal(t, "990015", records[14].OuterKey)
	assert.Equal(t, "10001", records[0].InnerKey)
}

func TestFallbackKeysStable(t *testing.T) {
	c := New()
	a, b := c.Fallback(), c.Fallback()
	for i := range a {
		assert.Equal(t, a[i].InnerKey, b[i].InnerKey)
	}
}

func TestStatusWeights(t *testing.T) {
	c := New()
	c.rng = rand.New(rand.NewPCG(7, 7))
	seen := make(map[string]int)
	for range 2000 {
		seen[c.status()]++
	}
	assert.Len(t, seen, len(statuses))
	assert.Greater(t, seen["On Time"], seen["At Platform"])
}
