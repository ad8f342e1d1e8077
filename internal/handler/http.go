package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pakrail/internal/domain"
	"pakrail/internal/store"
)

// Resolver maps a live record's keys to its catalog entry.
type Resolver interface {
	Resolve(outerKey, innerKey string) (domain.CatalogEntry, bool)
}

// Refresher reloads the static catalog on demand.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type HTTPHandler struct {
	store          *store.Store
	catalog        *store.CatalogStore
	resolver       Resolver
	refresher      Refresher
	insightsWindow time.Duration
	now            func() time.Time
}

func NewHTTPHandler(s *store.Store, catalog *store.CatalogStore, resolver Resolver, refresher Refresher, insightsWindow time.Duration) *HTTPHandler {
	return &HTTPHandler{
		store:          s,
		catalog:        catalog,
		resolver:       resolver,
		refresher:      refresher,
		insightsWindow: insightsWindow,
		now:            time.Now,
	}
}

type listResponse struct {
	Success     bool    `json:"success"`
	Data        any     `json:"data"`
	Count       int     `json:"count"`
	LastUpdated *string `json:"lastUpdated,omitempty"`
	Degraded    bool    `json:"degraded,omitempty"`
}

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ListLive serves the feed store read view. It always answers 200; while
// the feed is down the data holds placeholder trains with IsLive false.
func (h *HTTPHandler) ListLive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{OuterKey: q.Get("train")}

	if live := q.Get("live"); live != "" {
		b, err := strconv.ParseBool(live)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid live parameter: must be true or false")
			return
		}
		opts.LiveOnly = b
	}

	if bboxStr := q.Get("bbox"); bboxStr != "" {
		parts := strings.Split(bboxStr, ",")
		if len(parts) != 4 {
			respondError(w, http.StatusBadRequest, "invalid bbox format: expected minLat,minLon,maxLat,maxLon")
			return
		}
		bbox, err := parseBBox(parts)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid bbox values: "+err.Error())
			return
		}
		opts.BBox = bbox
	}

	records := h.store.List(opts)
	respondJSON(w, http.StatusOK, listResponse{
		Success:     true,
		Data:        records,
		Count:       len(records),
		LastUpdated: h.lastUpdated(),
		Degraded:    h.store.HasPlaceholders(),
	})
}

func (h *HTTPHandler) GetLive(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "innerKey")
	record, ok := h.store.Get(key)
	if !ok {
		respondError(w, http.StatusNotFound, "train instance not found")
		return
	}
	respondJSON(w, http.StatusOK, dataResponse{Success: true, Data: record})
}

func (h *HTTPHandler) ListTrains(w http.ResponseWriter, r *http.Request) {
	trains := h.catalog.Trains()
	respondJSON(w, http.StatusOK, listResponse{
		Success:     true,
		Data:        trains,
		Count:       len(trains),
		LastUpdated: formatOptional(h.catalog.LastUpdate()),
	})
}

func (h *HTTPHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations := h.catalog.Stations()
	respondJSON(w, http.StatusOK, listResponse{
		Success:     true,
		Data:        stations,
		Count:       len(stations),
		LastUpdated: formatOptional(h.catalog.LastUpdate()),
	})
}

type trainDetail struct {
	domain.CatalogEntry
	LiveStatus []*domain.LiveTrainRecord `json:"liveStatus"`
}

// GetTrain looks a catalog train up by id or number and attaches every live
// instance currently resolved to it.
func (h *HTTPHandler) GetTrain(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.catalog.FindTrain(chi.URLParam(r, "identifier"))
	if !ok {
		respondError(w, http.StatusNotFound, "train not found")
		return
	}

	live := []*domain.LiveTrainRecord{}
	for _, rec := range h.store.SnapshotView() {
		if resolved, ok := h.resolver.Resolve(rec.OuterKey, rec.InnerKey); ok && resolved.TrainID == entry.TrainID {
			live = append(live, rec)
		}
	}

	respondJSON(w, http.StatusOK, dataResponse{
		Success: true,
		Data:    trainDetail{CatalogEntry: entry, LiveStatus: live},
	})
}

func (h *HTTPHandler) SearchTrains(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		respondError(w, http.StatusBadRequest, "search query is required")
		return
	}
	results := h.catalog.SearchTrains(query)
	respondJSON(w, http.StatusOK, listResponse{Success: true, Data: results, Count: len(results)})
}

func (h *HTTPHandler) SearchStations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		respondError(w, http.StatusBadRequest, "search query is required")
		return
	}
	results := h.catalog.SearchStations(query)
	respondJSON(w, http.StatusOK, listResponse{Success: true, Data: results, Count: len(results)})
}

func (h *HTTPHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.Refresh(r.Context()); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		respondError(w, status, "catalog refresh failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "catalog refreshed",
		"lastUpdated": formatOptional(h.catalog.LastUpdate()),
	})
}

type Insights struct {
	TotalActiveTrains int     `json:"totalActiveTrains"`
	TrainsOnTheMove   int     `json:"trainsOnTheMove"`
	TrainsStopped     int     `json:"trainsStopped"`
	OnTimeTrains      int     `json:"onTimeTrains"`
	DelayedTrains     int     `json:"delayedTrains"`
	EarlyTrains       int     `json:"earlyTrains"`
	HighSpeedTrains   int     `json:"highSpeedTrains"`
	MediumSpeedTrains int     `json:"mediumSpeedTrains"`
	LowSpeedTrains    int     `json:"lowSpeedTrains"`
	AverageDelay      int     `json:"averageDelay"`
	AverageSpeed      int     `json:"averageSpeed"`
	LastUpdated       *string `json:"lastUpdated"`
	DataFreshness     string  `json:"dataFreshness"`
}

// Insights summarizes the live records updated within the insights window.
func (h *HTTPHandler) Insights(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	respondJSON(w, http.StatusOK, dataResponse{
		Success: true,
		Data:    computeInsights(h.store.SnapshotView(), now.Add(-h.insightsWindow), now, h.lastUpdated()),
	})
}

func computeInsights(records []*domain.LiveTrainRecord, cutoff, now time.Time, lastUpdated *string) Insights {
	in := Insights{LastUpdated: lastUpdated, DataFreshness: domain.FormatTimestamp(now)}

	var delaySum, speedSum int
	for _, r := range records {
		if !r.IsLive || r.LastUpdated.Before(cutoff) {
			continue
		}
		in.TotalActiveTrains++
		speedSum += r.SpeedKmh
		delaySum += abs(r.DelayMinutes)

		if r.SpeedKmh > 5 {
			in.TrainsOnTheMove++
		} else {
			in.TrainsStopped++
		}

		switch {
		case abs(r.DelayMinutes) <= 15:
			in.OnTimeTrains++
		case r.DelayMinutes > 15:
			in.DelayedTrains++
		default:
			in.EarlyTrains++
		}

		switch {
		case r.SpeedKmh > 80:
			in.HighSpeedTrains++
		case r.SpeedKmh > 30:
			in.MediumSpeedTrains++
		case r.SpeedKmh > 5:
			in.LowSpeedTrains++
		}
	}

	if in.TotalActiveTrains > 0 {
		n := float64(in.TotalActiveTrains)
		in.AverageDelay = int(math.Round(float64(delaySum) / n))
		in.AverageSpeed = int(math.Round(float64(speedSum) / n))
	}
	return in
}

func (h *HTTPHandler) lastUpdated() *string {
	return formatOptional(h.store.LastUpdatedAt())
}

func formatOptional(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := domain.FormatTimestamp(t)
	return &s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func parseBBox(parts []string) (*domain.BoundingBox, error) {
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	if vals[0] > vals[2] || vals[1] > vals[3] {
		return nil, errors.New("min exceeds max")
	}
	return &domain.BoundingBox{
		MinLat: vals[0], MinLon: vals[1],
		MaxLat: vals[2], MaxLon: vals[3],
	}, nil
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Success: false, Error: message})
}
