package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pakrail/internal/domain"
	"pakrail/internal/hub"
	"pakrail/internal/store"
)

func dialWS(t *testing.T, s *store.Store) (*websocket.Conn, *hub.Hub) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := hub.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(NewWSHandler(h, s, 8, nil, logger).ServeWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn, h
}

func writeMsg(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(msg)))
}

func readMsg(t *testing.T, conn *websocket.Conn, dest any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, dest))
}

func TestWSSubscribeSnapshotAndDelta(t *testing.T) {
	s := store.New()
	lahore := liveRecord("9900", "90012", 31.5, 74.3, 80, 0, 0)
	lahore.TileID = hub.TileID(lahore.Latitude, lahore.Longitude, 8)
	karachi := liveRecord("41", "410001", 24.86, 67.0, 40, 0, 0)
	karachi.TileID = hub.TileID(karachi.Latitude, karachi.Longitude, 8)
	s.ApplyDelta([]*domain.LiveTrainRecord{lahore, karachi})

	conn, h := dialWS(t, s)

	writeMsg(t, conn, `{"type":"subscribe","payload":{"tileIds":["8/180/104","junk"]}}`)
	var snap SnapshotMessage
	readMsg(t, conn, &snap)
	assert.Equal(t, "snapshot", snap.Type)
	assert.Equal(t, []string{"8/180/104"}, snap.Payload.TileIDs)
	require.Len(t, snap.Payload.Trains, 1)
	assert.Equal(t, "90012", snap.Payload.Trains[0].InnerKey)

	moved := lahore.Clone()
	moved.SpeedKmh = 95
	h.Broadcast(s.ApplyDelta([]*domain.LiveTrainRecord{moved}))

	var delta hub.DeltaMessage
	readMsg(t, conn, &delta)
	assert.Equal(t, "delta", delta.Type)
	require.Len(t, delta.Payload.Updates, 1)
	assert.Equal(t, 95, delta.Payload.Updates[0].SpeedKmh)

	writeMsg(t, conn, `{"type":"ping"}`)
	var pong PongMessage
	readMsg(t, conn, &pong)
	assert.Equal(t, "pong", pong.Type)
}

func TestWSSubscribeByBBoxAndPosition(t *testing.T) {
	s := store.New()
	karachi := liveRecord("41", "410001", 24.86, 67.0, 40, 0, 0)
	karachi.TileID = hub.TileID(karachi.Latitude, karachi.Longitude, 8)
	s.ApplyDelta([]*domain.LiveTrainRecord{karachi})

	conn, _ := dialWS(t, s)

	writeMsg(t, conn, `{"type":"subscribe","payload":{"bbox":{"minLat":24,"maxLat":25.5,"minLon":66.5,"maxLon":67.5}}}`)
	var snap SnapshotMessage
	readMsg(t, conn, &snap)
	require.Len(t, snap.Payload.Trains, 1)

	writeMsg(t, conn, `{"type":"subscribe","payload":{"near":{"lat":31.5,"lon":74.3}}}`)
	readMsg(t, conn, &snap)
	assert.Len(t, snap.Payload.TileIDs, 9)
	assert.Empty(t, snap.Payload.Trains)
}
