package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/crime-incident-service/internal/domain"
	"github.com/couchcryptid/crime-incident-service/internal/fetch"
)

const (
	defaultRadiusKm = 2.0
	defaultDays     = 7
	maxRadiusKm     = 50.0
	maxDays         = 3650
)

// handleGeocode resolves ?postal= to a point.
func (s *Server) handleGeocode(c *gin.Context) {
	postal := strings.TrimSpace(c.Query("postal"))
	if postal == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "postal is required"})
		return
	}

	result, err := domain.ResolvePostal(c.Request.Context(), s.geocoder, s.pref, postal, s.logger)
	if err != nil {
		if errors.Is(err, domain.ErrNoResults) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no results"})
			return
		}
		s.logger.Error("geocode failed", "postal", postal, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "geocoding failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleIncidents serves the merged incident set around a point.
func (s *Server) handleIncidents(c *gin.Context) {
	lat, err := requiredFloat(c, "lat")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	lng, err := requiredFloat(c, "lng")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat/lng out of range"})
		return
	}

	radiusKm, err := optionalFloat(c, "radiusKm", defaultRadiusKm)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	days, err := optionalInt(c, "days", defaultDays)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if radiusKm <= 0 || radiusKm > maxRadiusKm {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("radiusKm must be in (0, %g]", maxRadiusKm)})
		return
	}
	if days <= 0 || days > maxDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("days must be in [1, %d]", maxDays)})
		return
	}

	q := domain.FetchQuery{Lat: lat, Lng: lng, RadiusKm: radiusKm, Days: days}
	opts := fetch.Options{
		Strict: boolQuery(c, "strict"),
		Debug:  boolQuery(c, "debug"),
		Mock:   boolQuery(c, "mock"),
	}

	result := s.fetcher.Fetch(c.Request.Context(), q, opts)
	c.JSON(http.StatusOK, result)
}

// handleMeta describes the running configuration so the dashboard can render
// source attribution and sensible defaults.
func (s *Server) handleMeta(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sources": s.cfg.SourceTags(),
		"defaults": gin.H{
			"radiusKm": defaultRadiusKm,
			"days":     defaultDays,
		},
		"region": gin.H{
			"country": s.pref.CountryCode,
			"name":    s.pref.RegionName,
			"code":    s.pref.RegionCode,
		},
	})
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requiredFloat(c *gin.Context, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func optionalFloat(c *gin.Context, name string, fallback float64) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func optionalInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func boolQuery(c *gin.Context, name string) bool {
	switch strings.ToLower(c.Query(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
