package handler

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"pakrail/internal/ingestor"
	"pakrail/internal/middleware"
	"pakrail/internal/store"
)

// Stats tracks server-wide counters
type Stats struct {
	startTime    time.Time
	requestCount atomic.Int64
}

var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests() { s.requestCount.Add(1) }

type StatusProvider interface {
	Status() ingestor.Status
}

type StatsHandler struct {
	store     *store.Store
	catalog   *store.CatalogStore
	feed      StatusProvider
	clients   interface{ ClientCount() int }
	limiter   *middleware.RateLimiter
	startTime time.Time
}

func NewStatsHandler(s *store.Store, catalog *store.CatalogStore, feed StatusProvider, clients interface{ ClientCount() int }, limiter *middleware.RateLimiter) *StatsHandler {
	return &StatsHandler{
		store:     s,
		catalog:   catalog,
		feed:      feed,
		clients:   clients,
		limiter:   limiter,
		startTime: ServerStats.startTime,
	}
}

type StatsResponse struct {
	Server    ServerStatsResponse    `json:"server"`
	Feed      FeedStatsResponse      `json:"feed"`
	Catalog   store.CatalogStats     `json:"catalog"`
	WebSocket WebSocketStatsResponse `json:"websocket"`
	RateLimit *middleware.Stats      `json:"rate_limit,omitempty"`
	Go        GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
}

type FeedStatsResponse struct {
	ingestor.Status
	Records     int `json:"records"`
	LiveRecords int `json:"live_records"`
}

type WebSocketStatsResponse struct {
	Connections int `json:"connections"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     h.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
		},
		Feed: FeedStatsResponse{
			Status:      h.feed.Status(),
			Records:     h.store.Count(),
			LiveRecords: h.store.CountLive(),
		},
		Catalog: h.catalog.Stats(),
		WebSocket: WebSocketStatsResponse{
			Connections: h.clients.ClientCount(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}
	if h.limiter != nil {
		stats := h.limiter.Stats()
		response.RateLimit = &stats
	}

	w.Header().Set("Cache-Control", "no-cache")
	respondJSON(w, http.StatusOK, response)
}
