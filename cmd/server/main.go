package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/crime-incident-service/internal/adapter/arcgis"
	"github.com/couchcryptid/crime-incident-service/internal/adapter/geocache"
	"github.com/couchcryptid/crime-incident-service/internal/adapter/httpapi"
	"github.com/couchcryptid/crime-incident-service/internal/adapter/nominatim"
	"github.com/couchcryptid/crime-incident-service/internal/config"
	"github.com/couchcryptid/crime-incident-service/internal/domain"
	"github.com/couchcryptid/crime-incident-service/internal/fetch"
	"github.com/couchcryptid/crime-incident-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var geocoder domain.Geocoder = nominatim.NewClient(
		cfg.NominatimBaseURL,
		cfg.GeocodeUserAgent,
		cfg.GeocodeReferer,
		cfg.GeocodeCountry,
		cfg.UpstreamTimeout,
		metrics,
		logger,
	)

	// Geocode cache: Redis when configured, in-process LRU otherwise.
	// GEOCODE_CACHE_SIZE=0 disables caching entirely.
	var redisStore *geocache.Redis
	if cfg.GeocodeCacheSize > 0 {
		var store geocache.Store
		if cfg.RedisAddr != "" {
			redisStore, err = geocache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
			if err != nil {
				logger.Error("failed to connect to redis", "error", err)
				os.Exit(1)
			}
			store = redisStore
			logger.Info("geocode cache enabled", "backend", "redis", "addr", cfg.RedisAddr)
		} else {
			store = geocache.NewMemory(cfg.GeocodeCacheSize)
			logger.Info("geocode cache enabled", "backend", "memory", "size", cfg.GeocodeCacheSize)
		}
		geocoder = geocache.NewCached(geocoder, store, metrics)
	} else {
		logger.Info("geocode cache disabled")
	}

	arcgisClient := arcgis.NewClient(cfg.UpstreamTimeout, metrics, logger)
	sources := fetch.BuildSources(cfg, arcgisClient, logger)
	if len(sources) == 0 {
		logger.Warn("no incident sources configured, /incidents will serve synthetic data")
	} else {
		logger.Info("incident sources configured", "sources", cfg.SourceTags())
	}

	fetcher := fetch.New(sources, clockwork.NewRealClock(), metrics, logger)
	srv := httpapi.New(cfg, geocoder, fetcher, metrics, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
