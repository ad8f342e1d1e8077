package engineio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	protocolVersion = "4"
	maxBodyBytes    = 32 << 20
	defaultUA       = "Mozilla/5.0 (compatible; TrainTracker)"
)

// Client negotiates sessions and exchanges polling frames with one endpoint.
type Client struct {
	baseURL    string
	origin     string
	userAgent  string
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Client)

// WithOrigin sets the Origin and Referer headers sent with every request.
func WithOrigin(origin string) Option {
	return func(c *Client) { c.origin = origin }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHTTPClient replaces the default client; its Timeout bounds every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for a transport base like
// https://socket.pakraillive.com/socket.io/. timeout bounds each request.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		userAgent: defaultUA,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the transport base the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Open performs the polling handshake and returns an open session.
func (c *Client) Open(ctx context.Context) (*Session, error) {
	reqURL := c.transportURL("polling", "", true)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrHandshakeFailed, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %v", ErrHandshakeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrHandshakeFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if IsVersionRejection(string(body)) {
			return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, ErrUnsupportedVersion)
		}
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrHandshakeFailed, resp.StatusCode)
	}

	hs, err := parseHandshake(string(body))
	if err != nil {
		return nil, err
	}
	return hs.session(c.now()), nil
}

// Send posts one payload to the session, e.g. 42["all-newtrains"].
func (c *Client) Send(ctx context.Context, s *Session, payload string) error {
	if s == nil || s.State != StateOpen {
		return fmt.Errorf("send on %s session", stateOf(s))
	}
	reqURL := c.transportURL("polling", s.ID, false)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// Poll issues one long-poll GET and returns the raw body text.
func (c *Client) Poll(ctx context.Context, s *Session) (string, error) {
	if s == nil || s.State != StateOpen {
		return "", fmt.Errorf("poll on %s session", stateOf(s))
	}
	reqURL := c.transportURL("polling", s.ID, true)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}

// Close marks the session as finished. The server side expires on its own.
func (c *Client) Close(s *Session) {
	if s != nil {
		s.State = StateClosed
	}
}

// transportURL keeps the parameter order EIO, transport, sid, t.
func (c *Client) transportURL(transport, sid string, bust bool) string {
	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString(sep)
	b.WriteString("EIO=" + protocolVersion)
	b.WriteString("&transport=" + transport)
	if sid != "" {
		b.WriteString("&sid=" + sid)
	}
	if bust {
		b.WriteString("&t=" + strconv.FormatInt(c.now().UnixMilli(), 10))
	}
	return b.String()
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-cache")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
		req.Header.Set("Referer", c.origin+"/")
	}
}

// parseHandshake reads the first JSON object of a body like
// 97:0{"sid":"abc",...}2:40 and returns its fields.
func parseHandshake(body string) (handshake, error) {
	idx := strings.IndexByte(body, '{')
	if idx < 0 {
		if IsVersionRejection(body) {
			return handshake{}, fmt.Errorf("%w: %w", ErrHandshakeFailed, ErrUnsupportedVersion)
		}
		return handshake{}, fmt.Errorf("%w: no JSON object in response", ErrHandshakeFailed)
	}

	var hs handshake
	if err := json.NewDecoder(strings.NewReader(body[idx:])).Decode(&hs); err != nil {
		return handshake{}, fmt.Errorf("%w: decoding handshake: %v", ErrHandshakeFailed, err)
	}
	if hs.SID == "" {
		if IsVersionRejection(body) {
			return handshake{}, fmt.Errorf("%w: %w", ErrHandshakeFailed, ErrUnsupportedVersion)
		}
		return handshake{}, fmt.Errorf("%w: response has no sid", ErrHandshakeFailed)
	}
	return hs, nil
}

// IsVersionRejection matches the error bodies Engine.IO and Socket.IO servers
// send when the client speaks a wire version they do not accept.
func IsVersionRejection(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "unsupported protocol version") ||
		strings.Contains(lower, "v2.x") ||
		strings.Contains(lower, "v3.x")
}

func stateOf(s *Session) string {
	if s == nil {
		return "nil"
	}
	return s.State.String()
}
