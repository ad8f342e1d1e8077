package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pakrail/internal/domain"
)

type HTTPSourceConfig struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

// HTTPSource polls a JSON endpoint that already serves canonical train
// records. It stands in for the socket feed when the feed's protocol
// version cannot be spoken.
type HTTPSource struct {
	cfg        HTTPSourceConfig
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewHTTPSource(cfg HTTPSourceConfig, logger *slog.Logger) *HTTPSource {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &HTTPSource{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With("component", "http_source"),
		now:    time.Now,
	}
}

func (h *HTTPSource) Name() string {
	return "http"
}

func (h *HTTPSource) Run(ctx context.Context, events chan<- Event) error {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		ev := Event{Source: h.Name()}
		records, err := h.Fetch(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ev.ReceivedAt = h.now()
		if err != nil {
			ev.Kind = KindFailure
			ev.Err = err
		} else {
			ev.Kind = KindDelta
			ev.Records = records
		}
		if !emit(ctx, events, ev) {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Fetch retrieves one batch. Entries that do not decode, or carry no
// InnerKey, are skipped.
func (h *HTTPSource) Fetch(ctx context.Context) ([]*domain.LiveTrainRecord, error) {
	requestID := uuid.NewString()
	log := h.logger.With("request_id", requestID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; TrainTracker)")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrConnection, resp.StatusCode)
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	records := make([]*domain.LiveTrainRecord, 0, len(items))
	skipped := 0
	for _, item := range items {
		var rec domain.LiveTrainRecord
		if err := json.Unmarshal(item, &rec); err != nil || rec.InnerKey == "" || !rec.HasValidPosition() {
			skipped++
			continue
		}
		if rec.LastUpdated.IsZero() {
			rec.LastUpdated = h.now().UTC()
		}
		rec.IsLive = true
		records = append(records, &rec)
	}
	if len(records) == 0 && len(items) > 0 {
		return nil, fmt.Errorf("%w: none of %d entries usable", ErrNoData, len(items))
	}

	log.Debug("fetched live records", "records", len(records), "skipped", skipped)
	return records, nil
}
