package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(rate int, whitelist ...string) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(rate, time.Minute, whitelist, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2025, 6, 6, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowWindow(t *testing.T) {
	rl, now := newTestLimiter(2)

	ok, _ := rl.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, retry := rl.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)

	ok, _ = rl.Allow("5.6.7.8")
	assert.True(t, ok)

	*now = now.Add(time.Minute)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)
}

func TestDisabledLimiter(t *testing.T) {
	rl, _ := newTestLimiter(0)
	for range 10 {
		ok, _ := rl.Allow("1.2.3.4")
		require.True(t, ok)
	}
	assert.Zero(t, rl.Stats().TrackedIPs)
}

func TestEvict(t *testing.T) {
	rl, now := newTestLimiter(5)
	rl.Allow("1.2.3.4")
	*now = now.Add(3 * time.Minute)
	rl.Allow("5.6.7.8")
	rl.evict()
	assert.Equal(t, 1, rl.Stats().TrackedIPs)
}

func TestMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(1, "10.0.0.1")
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote, xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/live", nil)
		req.RemoteAddr = remote
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("192.0.2.1:5000", "").Code)
	limited := do("192.0.2.1:5001", "")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, do("192.0.2.9:1", "203.0.113.7, 192.0.2.9").Code)
	assert.Equal(t, http.StatusTooManyRequests, do("192.0.2.9:1", "203.0.113.7").Code)

	for range 3 {
		assert.Equal(t, http.StatusNoContent, do("10.0.0.1:80", "").Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9:443, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}
