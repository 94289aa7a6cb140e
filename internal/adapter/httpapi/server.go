// Package httpapi exposes the dashboard backend over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/crime-incident-service/internal/config"
	"github.com/couchcryptid/crime-incident-service/internal/domain"
	"github.com/couchcryptid/crime-incident-service/internal/fetch"
	"github.com/couchcryptid/crime-incident-service/internal/observability"
)

// Server wires the HTTP routes to the geocoding resolver and the incident
// fetcher.
type Server struct {
	http     *http.Server
	geocoder domain.Geocoder
	pref     domain.RegionPreference
	fetcher  *fetch.Fetcher
	cfg      *config.Config
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New builds the server and registers all routes.
func New(cfg *config.Config, geocoder domain.Geocoder, fetcher *fetch.Fetcher, metrics *observability.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		geocoder: geocoder,
		pref: domain.RegionPreference{
			CountryCode: cfg.GeocodeCountry,
			CountryName: cfg.GeocodeCountryName,
			RegionName:  cfg.GeocodeRegionName,
			RegionCode:  cfg.GeocodeRegionCode,
		},
		fetcher: fetcher,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	engine.GET("/geocode", s.handleGeocode)
	engine.GET("/incidents", s.handleIncidents)
	engine.GET("/meta", s.handleMeta)
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.http = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}
	return s
}

// Handler returns the route handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestLogger logs one line per request in the service's structured format.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
