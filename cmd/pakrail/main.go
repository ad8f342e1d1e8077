package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"pakrail/internal/cache"
	"pakrail/internal/config"
	"pakrail/internal/fallback"
	"pakrail/internal/handler"
	"pakrail/internal/hub"
	"pakrail/internal/ingestor"
	"pakrail/internal/middleware"
	"pakrail/internal/normalize"
	"pakrail/internal/observability"
	"pakrail/internal/store"
	"pakrail/internal/transport"
	"pakrail/pkg/engineio"
	"pakrail/pkg/trackyourtrains"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting pakrail server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"live_transport", cfg.LiveTransport,
		"socket_url", cfg.SocketURL,
		"redis_enabled", cfg.RedisEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalogStore := store.NewCatalogStore()
	feedStore := store.New()
	wsHub := hub.NewHub(logger)

	catalogIng := ingestor.NewCatalogIngestor(
		trackyourtrains.New(cfg.CatalogBaseURL, cfg.CatalogVersion),
		catalogStore,
		cfg.CatalogRefreshCron,
		logger,
	)
	catalogIng.SetOnUpdate(func(context.Context) {
		stats := catalogStore.Stats()
		logger.Info("catalog updated", "trains", stats.Trains, "stations", stats.Stations, "version", stats.Version)
	})

	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, catalog cache disabled", "error", err)
		} else {
			defer redisCache.Close()
			catalogIng.SetCache(cache.NewCatalogCache(redisCache, cfg.CatalogVersion, cfg.CacheTTL, logger))
		}
	}

	socketClient := engineio.New(cfg.SocketURL, cfg.HandshakeTimeout, engineio.WithOrigin(cfg.SocketOrigin))

	var primary transport.Source
	switch cfg.LiveTransport {
	case config.TransportPolling:
		primary = transport.NewPoller(socketClient, transport.PollerConfig{
			MaxAttempts:  cfg.PollMaxAttempts,
			AttemptDelay: cfg.PollAttemptDelay,
			Interval:     cfg.PollInterval,
		}, logger)
	default:
		primary = transport.NewSubscriber(socketClient, transport.SubscriberConfig{
			InitialBackoff: cfg.ReconnectInitial,
			MaxBackoff:     cfg.ReconnectMax,
		}, logger)
	}

	var secondary transport.Source
	if cfg.FallbackHTTPURL != "" {
		secondary = transport.NewHTTPSource(transport.HTTPSourceConfig{
			URL:      cfg.FallbackHTTPURL,
			Interval: cfg.FallbackHTTPInterval,
		}, logger)
	}

	normalizer := normalize.New(catalogStore, logger)
	feedIng := ingestor.New(ingestor.Options{
		Primary:   primary,
		Secondary: secondary,
		ZoomLevel: cfg.TileZoomLevel,
	}, normalizer, feedStore, fallback.New(), wsHub, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)

	httpHandler := handler.NewHTTPHandler(feedStore, catalogStore, normalizer, catalogIng, cfg.InsightsWindow)
	wsHandler := handler.NewWSHandler(wsHub, feedStore, cfg.TileZoomLevel, cfg.CORSAllowedOrigins, logger)
	healthHandler := handler.NewHealthHandler(feedIng, catalogIng, feedStore)
	statsHandler := handler.NewStatsHandler(feedStore, catalogStore, feedIng, wsHub, limiter)

	r := chi.NewRouter()
	r.Use(handler.CountRequests)
	r.Use(handler.CORSMiddleware(cfg.CORSAllowedOrigins))

	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Handle("/metrics", observability.Handler())
	r.HandleFunc("/v1/ws", wsHandler.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(handler.GzipMiddleware)

		r.Get("/api/live", httpHandler.ListLive)
		r.Get("/api/live/{innerKey}", httpHandler.GetLive)
		r.Get("/api/trains", httpHandler.ListTrains)
		r.Get("/api/stations", httpHandler.ListStations)
		r.Get("/api/stations/search", httpHandler.SearchStations)
		r.Get("/api/train/{identifier}", httpHandler.GetTrain)
		r.Get("/api/search", httpHandler.SearchTrains)
		r.Get("/api/insights", httpHandler.Insights)
		r.Get("/api/refresh", httpHandler.Refresh)
		r.Get("/v1/stats", statsHandler.GetStats)
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go wsHub.Run(ctx)
	go limiter.Run(ctx)

	go func() {
		if err := catalogIng.Start(ctx); err != nil {
			logger.Error("catalog ingestor stopped", "error", err)
		}
	}()

	go feedIng.Run(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
