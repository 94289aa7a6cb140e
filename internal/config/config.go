package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream feature services.
	TorontoMCIFeatureURL string
	ArcGISSources        map[string]string // tag → FeatureServer layer URL
	UpstreamTimeout      time.Duration

	// Geocoding (Nominatim).
	NominatimBaseURL   string
	GeocodeUserAgent   string
	GeocodeReferer     string
	GeocodeCountry     string
	GeocodeCountryName string
	GeocodeRegionName  string
	GeocodeRegionCode  string
	GeocodeCacheSize   int

	// Optional Redis-backed geocode cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads configuration from the environment (and a .env file when
// present), applying defaults where unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	upstreamTimeout, err := envDuration("UPSTREAM_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	sources, err := parseSources(os.Getenv("ARCGIS_SOURCES"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		TorontoMCIFeatureURL: strings.TrimRight(os.Getenv("TORONTO_MCI_FEATURE_URL"), "/"),
		ArcGISSources:        sources,
		UpstreamTimeout:      upstreamTimeout,

		NominatimBaseURL:   envOrDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocodeUserAgent:   envOrDefault("GEOCODE_USER_AGENT", "crime-incident-service/0.1 (contact: please-set-GEOCODE_USER_AGENT)"),
		GeocodeReferer:     envOrDefault("GEOCODE_REFERER", "http://localhost:8080"),
		GeocodeCountry:     strings.ToLower(envOrDefault("GEOCODE_COUNTRY", "ca")),
		GeocodeCountryName: envOrDefault("GEOCODE_COUNTRY_NAME", "Canada"),
		GeocodeRegionName:  envOrDefault("GEOCODE_REGION_NAME", "Ontario"),
		GeocodeRegionCode:  envOrDefault("GEOCODE_REGION_CODE", "ON"),
		GeocodeCacheSize:   envInt("GEOCODE_CACHE_SIZE", 1000),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
	}

	if cfg.TorontoMCIFeatureURL != "" {
		if _, err := url.ParseRequestURI(cfg.TorontoMCIFeatureURL); err != nil {
			return nil, fmt.Errorf("invalid TORONTO_MCI_FEATURE_URL: %w", err)
		}
	}
	if cfg.GeocodeCacheSize < 0 {
		return nil, errors.New("GEOCODE_CACHE_SIZE must not be negative")
	}

	return cfg, nil
}

// SourceTags returns the configured upstream source tags in stable order.
func (c *Config) SourceTags() []string {
	var tags []string
	if c.TorontoMCIFeatureURL != "" {
		tags = append(tags, "toronto-mci")
	}
	for tag := range c.ArcGISSources {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// HasSources reports whether any upstream feed is configured.
func (c *Config) HasSources() bool {
	return c.TorontoMCIFeatureURL != "" || len(c.ArcGISSources) > 0
}

// parseSources parses "tag=url,tag2=url2" into a map. Tags must be unique
// and URLs absolute.
func parseSources(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	sources := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tag, u, ok := strings.Cut(pair, "=")
		tag = strings.TrimSpace(tag)
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if !ok || tag == "" || u == "" {
			return nil, fmt.Errorf("invalid ARCGIS_SOURCES entry %q (want tag=url)", pair)
		}
		if _, err := url.ParseRequestURI(u); err != nil {
			return nil, fmt.Errorf("invalid ARCGIS_SOURCES url for %q: %w", tag, err)
		}
		if _, dup := sources[tag]; dup {
			return nil, fmt.Errorf("duplicate ARCGIS_SOURCES tag %q", tag)
		}
		sources[tag] = u
	}
	return sources, nil
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
