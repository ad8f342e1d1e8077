package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"pakrail/internal/domain"
	"pakrail/internal/hub"
	"pakrail/internal/store"
)

const clientBufferSize = 256

type WSHandler struct {
	hub            *hub.Hub
	store          *store.Store
	zoom           int
	originPatterns []string
	logger         *slog.Logger
}

func NewWSHandler(h *hub.Hub, s *store.Store, zoom int, originPatterns []string, logger *slog.Logger) *WSHandler {
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &WSHandler{
		hub:            h,
		store:          s,
		zoom:           zoom,
		originPatterns: originPatterns,
		logger:         logger.With("component", "ws"),
	}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload selects tiles by explicit ID, by bounding box, or as the
// neighborhood of a position. All given selectors are combined.
type SubscribePayload struct {
	TileIDs []string            `json:"tileIds"`
	BBox    *domain.BoundingBox `json:"bbox,omitempty"`
	Near    *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"near,omitempty"`
}

type UnsubscribePayload struct {
	TileIDs []string `json:"tileIds"`
}

type SnapshotMessage struct {
	Type    string          `json:"type"`
	Payload SnapshotPayload `json:"payload"`
}

type SnapshotPayload struct {
	TileIDs []string                  `json:"tileIds"`
	Trains  []*domain.LiveTrainRecord `json:"trains"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.New().String(), clientBufferSize)
	h.hub.Register(client)
	h.logger.Debug("websocket connected", "client_id", client.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			var payload SubscribePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if tiles := h.resolveTiles(payload); len(tiles) > 0 {
				h.hub.Subscribe(client, tiles)
				h.sendSnapshot(client, tiles)
			}

		case "unsubscribe":
			var payload UnsubscribePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if len(payload.TileIDs) > 0 {
				h.hub.Unsubscribe(client, payload.TileIDs)
			}

		case "ping":
			h.send(client, PongMessage{Type: "pong"})
		}
	}
}

func (h *WSHandler) resolveTiles(p SubscribePayload) []string {
	tiles := append([]string{}, p.TileIDs...)
	if p.BBox != nil {
		tiles = append(tiles, hub.TilesInBBox(*p.BBox, h.zoom)...)
	}
	if p.Near != nil {
		tiles = append(tiles, hub.AdjacentTiles(p.Near.Lat, p.Near.Lon, h.zoom)...)
	}
	return hub.ValidTiles(tiles, h.zoom)
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) sendSnapshot(client *hub.Client, tileIDs []string) {
	trains := h.store.SnapshotForTiles(tileIDs)
	if trains == nil {
		trains = []*domain.LiveTrainRecord{}
	}
	h.send(client, SnapshotMessage{
		Type:    "snapshot",
		Payload: SnapshotPayload{TileIDs: tileIDs, Trains: trains},
	})
}

func (h *WSHandler) send(client *hub.Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case client.Send <- data:
	default:
		h.logger.Debug("client send buffer full", "client_id", client.ID)
	}
}
