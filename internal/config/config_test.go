package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, TransportSubscriber, cfg.LiveTransport)
	assert.Equal(t, "https://socket.pakraillive.com/socket.io/", cfg.SocketURL)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 45*time.Second, cfg.PollInterval)
	assert.Equal(t, 5, cfg.PollMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.PollAttemptDelay)
	assert.Equal(t, time.Second, cfg.ReconnectInitial)
	assert.Equal(t, 5*time.Second, cfg.ReconnectMax)
	assert.Equal(t, "0 * * * *", cfg.CatalogRefreshCron)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.RedisEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LIVE_TRANSPORT", "Polling")
	t.Setenv("POLL_MAX_ATTEMPTS", "3")
	t.Setenv("POLL_ATTEMPT_DELAY", "500ms")
	t.Setenv("RATE_LIMIT_WHITELIST", " 10.0.0.1, ,127.0.0.1")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://pakraillive.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, TransportPolling, cfg.LiveTransport)
	assert.Equal(t, 3, cfg.PollMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.PollAttemptDelay)
	assert.Equal(t, []string{"10.0.0.1", "127.0.0.1"}, cfg.RateLimitWhitelist)
	assert.Equal(t, []string{"https://pakraillive.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("REDIS_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.PollInterval)
	assert.False(t, cfg.RedisEnabled)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string][2]string{
		"unknown transport": {"LIVE_TRANSPORT", "carrier-pigeon"},
		"bad socket url":    {"SOCKET_URL", "not a url"},
		"zero attempts":     {"POLL_MAX_ATTEMPTS", "0"},
		"backoff inverted":  {"RECONNECT_MAX", "100ms"},
		"zoom too deep":     {"TILE_ZOOM_LEVEL", "30"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
