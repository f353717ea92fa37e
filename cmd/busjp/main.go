package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"busjp/internal/cache"
	"busjp/internal/config"
	"busjp/internal/domain"
	"busjp/internal/handler"
	"busjp/internal/hub"
	"busjp/internal/ingestor"
	"busjp/internal/middleware"
	"busjp/internal/shell"
	"busjp/internal/store"
	"busjp/pkg/gtfs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err, "fields", config.ValidationErrors(err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting busjp server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"gtfs_base_url", cfg.GTFSBaseURL,
		"redis_enabled", cfg.RedisEnabled,
	)

	gtfsStore := store.NewGTFSStore()
	sessionHub := hub.NewHub(logger.With("component", "hub"))

	responseCache := newCache(cfg, logger)
	defer responseCache.Close()

	fetcher := gtfs.NewFetcher(cfg.GTFSBaseURL, cfg.GTFSFetchTimeout, logger)
	loader := gtfs.NewLoader(fetcher, cfg.GTFSStopsFile, cfg.GTFSRoutesFile, logger)
	gtfsIng := ingestor.NewGTFSIngestor(loader, gtfsStore, sessionHub, cfg.GTFSRefreshInterval, logger)

	warmer := cache.NewCatalogWarmer(responseCache, gtfsStore, cfg.CacheTTL, logger)
	gtfsIng.SetOnUpdate(warmer.OnUpdate)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	limiter.OnBlocked(func(string) { handler.ServerStats.IncRateLimitBlocked() })
	defer limiter.Stop()

	tiles := shell.TileLayers{
		Light: shell.TileLayer{URL: cfg.Map.LightTiles.URL, Attribution: cfg.Map.LightTiles.Attribution},
		Dark:  shell.TileLayer{URL: cfg.Map.DarkTiles.URL, Attribution: cfg.Map.DarkTiles.Attribution},
	}
	mapSettings := handler.MapSettings{
		Center: domain.LatLng{Lat: cfg.Map.CenterLat, Lon: cfg.Map.CenterLon},
		Zoom:   cfg.Map.DefaultZoom,
		Tiles:  tiles,
	}

	router := handler.NewRouter(handler.RouterConfig{
		Query:          handler.NewQueryHandler(gtfsStore, logger),
		GTFS:           handler.NewGTFSHandler(gtfsStore, responseCache, gtfsIng, mapSettings, logger),
		WS:             handler.NewWSHandler(sessionHub, gtfsStore, tiles, cfg.WSSendBuffer, cfg.CORSAllowedOrigins, logger),
		Health:         handler.NewHealthHandler(gtfsIng, gtfsStore),
		Stats:          handler.NewStatsHandler(gtfsStore, sessionHub, limiter),
		Limiter:        limiter,
		GTFSDir:        cfg.GTFSDir,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// listen before loading so a loader pointed at our own /gtfs finds the server up
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.HTTPAddr, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sessionHub.Run(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	go gtfsIng.Start(ctx)

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

// newCache prefers Redis and falls back to the in-process LRU when Redis
// is disabled or unreachable.
func newCache(cfg *config.Config, logger *slog.Logger) cache.Cache {
	if cfg.RedisEnabled {
		rc, err := cache.NewRedisCache(context.Background(), cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err == nil {
			logger.Info("using redis cache", "addr", cfg.RedisAddr)
			return rc
		}
		logger.Warn("redis unavailable, falling back to local cache", "error", err)
	}
	return cache.NewLocalCache(cfg.LocalCacheSize, logger)
}
