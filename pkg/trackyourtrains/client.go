package trackyourtrains

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pakrail/internal/domain"
)

const (
	trainsFile   = "Trains.json"
	stationsFile = "StationsData.json"
)

// Client reads the static train and station catalog from the timetable mirror.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
}

// New creates a client. version is sent as the v query parameter the mirror
// uses for cache busting.
func New(baseURL, version string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		version: version,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// apiResponse is the optional envelope some mirror files are wrapped in.
type apiResponse struct {
	Response json.RawMessage `json:"Response"`
}

func (c *Client) FetchTrains(ctx context.Context) ([]domain.CatalogEntry, error) {
	var trains []domain.CatalogEntry
	if err := c.fetch(ctx, trainsFile, &trains); err != nil {
		return nil, fmt.Errorf("fetching trains: %w", err)
	}
	return trains, nil
}

func (c *Client) FetchStations(ctx context.Context) ([]domain.Station, error) {
	var stations []domain.Station
	if err := c.fetch(ctx, stationsFile, &stations); err != nil {
		return nil, fmt.Errorf("fetching stations: %w", err)
	}
	return stations, nil
}

func (c *Client) fetch(ctx context.Context, file string, out any) error {
	params := url.Values{}
	if c.version != "" {
		params.Set("v", c.version)
	}
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, file)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	items := body
	if trimmed := strings.TrimSpace(string(body)); strings.HasPrefix(trimmed, "{") {
		var env apiResponse
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("decoding envelope: %w", err)
		}
		items = env.Response
	}
	if !strings.HasPrefix(strings.TrimSpace(string(items)), "[") {
		// Anything but a list is treated as an empty catalog file.
		items = json.RawMessage("[]")
	}

	if err := json.Unmarshal(items, out); err != nil {
		return fmt.Errorf("decoding items: %w", err)
	}
	return nil
}
