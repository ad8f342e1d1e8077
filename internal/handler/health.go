package handler

import (
	"net/http"
	"time"
)

// ReadyChecker is satisfied by the ingestors.
type ReadyChecker interface {
	IsReady() bool
}

type HealthHandler struct {
	feed    ReadyChecker
	catalog ReadyChecker
	counter interface{ Count() int }
}

func NewHealthHandler(feed, catalog ReadyChecker, counter interface{ Count() int }) *HealthHandler {
	return &HealthHandler{feed: feed, catalog: catalog, counter: counter}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready         bool      `json:"ready"`
	FeedReady     bool      `json:"feedReady"`
	CatalogLoaded bool      `json:"catalogLoaded"`
	TrainCount    int       `json:"trainCount"`
	ServerTime    time.Time `json:"serverTime"`
}

// Readyz turns ready once the feed has produced records or placeholders.
// A missing catalog only degrades name resolution and does not block it.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	feedReady := h.feed.IsReady()
	status := http.StatusOK
	if !feedReady {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:         feedReady,
		FeedReady:     feedReady,
		CatalogLoaded: h.catalog.IsReady(),
		TrainCount:    h.counter.Count(),
		ServerTime:    time.Now().UTC(),
	})
}
