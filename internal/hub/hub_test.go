package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pakrail/internal/domain"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, c *Client) DeltaMessage {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg DeltaMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return DeltaMessage{}
	}
}

func TestFanoutByTile(t *testing.T) {
	h := newTestHub(t)
	lahore := NewClient("lahore", 4)
	karachi := NewClient("karachi", 4)
	h.Register(lahore)
	h.Register(karachi)
	h.Subscribe(lahore, []string{"8/180/104"})
	h.Subscribe(karachi, []string{"8/175/109"})

	rec := &domain.LiveTrainRecord{OuterKey: "9900", InnerKey: "90012", Latitude: 31.5, Longitude: 74.3, TileID: "8/180/104"}
	h.Broadcast([]domain.RecordDelta{
		{Type: domain.DeltaUpdate, Record: rec, TileID: rec.TileID},
		{Type: domain.DeltaRemove, Key: "990101", TileID: "8/180/104"},
	})

	msg := receive(t, lahore)
	assert.Equal(t, "delta", msg.Type)
	require.Len(t, msg.Payload.Updates, 1)
	assert.Equal(t, "90012", msg.Payload.Updates[0].InnerKey)
	assert.Equal(t, []string{"990101"}, msg.Payload.Removes)

	select {
	case <-karachi.Send:
		t.Fatal("karachi client got a lahore delta")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeAndUnregister(t *testing.T) {
	h := newTestHub(t)
	c := NewClient("c", 4)
	h.Register(c)
	h.Subscribe(c, []string{"8/180/104", "8/180/105"})
	h.Unsubscribe(c, []string{"8/180/104"})
	assert.Equal(t, []string{"8/180/105"}, c.GetTiles())

	h.Broadcast([]domain.RecordDelta{{Type: domain.DeltaUpdate, Record: &domain.LiveTrainRecord{InnerKey: "1"}, TileID: "8/180/104"}})
	select {
	case <-c.Send:
		t.Fatal("delta for an unsubscribed tile")
	case <-time.After(50 * time.Millisecond):
	}

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-c.Send
	assert.False(t, open)
}

func TestBroadcastIgnoresEmpty(t *testing.T) {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.Broadcast(nil)
	assert.Empty(t, h.broadcast)
}
