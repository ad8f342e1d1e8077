package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	TransportSubscriber = "subscriber"
	TransportPolling    = "polling"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	LiveTransport    string        `validate:"oneof=subscriber polling"`
	SocketURL        string        `validate:"required,url"`
	SocketOrigin     string        `validate:"omitempty,url"`
	HandshakeTimeout time.Duration `validate:"gt=0"`
	PollInterval     time.Duration `validate:"gt=0"`
	PollMaxAttempts  int           `validate:"min=1,max=50"`
	PollAttemptDelay time.Duration `validate:"gte=0"`
	ReconnectInitial time.Duration `validate:"gt=0"`
	ReconnectMax     time.Duration `validate:"gtefield=ReconnectInitial"`

	FallbackHTTPURL      string        `validate:"omitempty,url"`
	FallbackHTTPInterval time.Duration `validate:"gt=0"`

	CatalogBaseURL     string `validate:"required,url"`
	CatalogVersion     string `validate:"required"`
	CatalogRefreshCron string `validate:"required"`

	TileZoomLevel  int           `validate:"min=1,max=18"`
	InsightsWindow time.Duration `validate:"gt=0"`

	RedisEnabled  bool
	RedisAddr     string `validate:"required_if=RedisEnabled true"`
	RedisPassword string
	RedisDB       int           `validate:"min=0"`
	CacheTTL      time.Duration `validate:"gt=0"`

	RateLimitPerWindow int           `validate:"min=0"`
	RateLimitWindow    time.Duration `validate:"gt=0"`
	RateLimitWhitelist []string
	CORSAllowedOrigins []string
}

// Load reads the environment, after merging any .env file found in the
// working directory, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		LiveTransport:    strings.ToLower(getEnv("LIVE_TRANSPORT", TransportSubscriber)),
		SocketURL:        getEnv("SOCKET_URL", "https://socket.pakraillive.com/socket.io/"),
		SocketOrigin:     getEnv("SOCKET_ORIGIN", "https://pakraillive.com"),
		HandshakeTimeout: getDurationEnv("HANDSHAKE_TIMEOUT", 10*time.Second),
		PollInterval:     getDurationEnv("POLL_INTERVAL", 45*time.Second),
		PollMaxAttempts:  getIntEnv("POLL_MAX_ATTEMPTS", 5),
		PollAttemptDelay: getDurationEnv("POLL_ATTEMPT_DELAY", 2*time.Second),
		ReconnectInitial: getDurationEnv("RECONNECT_INITIAL", time.Second),
		ReconnectMax:     getDurationEnv("RECONNECT_MAX", 5*time.Second),

		FallbackHTTPURL:      getEnv("FALLBACK_HTTP_URL", "https://pakraillive.com/api/live-trains"),
		FallbackHTTPInterval: getDurationEnv("FALLBACK_HTTP_INTERVAL", 30*time.Second),

		CatalogBaseURL:     getEnv("CATALOG_BASE_URL", "https://trackyourtrains.com/data"),
		CatalogVersion:     getEnv("CATALOG_VERSION", "2025-06-06"),
		CatalogRefreshCron: getEnv("CATALOG_REFRESH_CRON", "0 * * * *"),

		TileZoomLevel:  getIntEnv("TILE_ZOOM_LEVEL", 8),
		InsightsWindow: getDurationEnv("INSIGHTS_WINDOW", 30*time.Minute),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		CacheTTL:      getDurationEnv("CACHE_TTL", 24*time.Hour),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
		CORSAllowedOrigins: getCSVEnv("CORS_ALLOWED_ORIGINS"),
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
