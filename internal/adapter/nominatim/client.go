// Package nominatim implements domain.Geocoder against the OSM Nominatim
// search API.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/crime-incident-service/internal/domain"
	"github.com/couchcryptid/crime-incident-service/internal/observability"
)

// Client issues single search round-trips. Strategy ordering lives in
// domain.ResolvePostal; the client knows nothing about fallbacks.
type Client struct {
	http    *resty.Client
	country string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a Nominatim client. userAgent and referer identify this
// deployment per the Nominatim usage policy; countryCode scopes every query.
func NewClient(baseURL, userAgent, referer, countryCode string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Referer", referer).
		// The usage policy forbids serving stale cached responses.
		SetHeader("Cache-Control", "no-cache")

	return &Client{
		http:    http,
		country: countryCode,
		metrics: metrics,
		logger:  logger,
	}
}

// Search executes one geocoding query and returns all candidates so the
// resolver can apply region preference.
func (c *Client) Search(ctx context.Context, q domain.GeocodeQuery) ([]domain.Place, error) {
	params := map[string]string{
		"format":         "json",
		"limit":          "5",
		"addressdetails": "1",
		"countrycodes":   c.country,
	}
	strategy := "freetext"
	if q.PostalCode != "" {
		strategy = "postalcode"
		params["postalcode"] = q.PostalCode
	} else {
		params["q"] = q.FreeText
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/search")
	c.metrics.UpstreamDuration.WithLabelValues("nominatim").Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(strategy, "error").Inc()
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	if resp.StatusCode() != 200 {
		c.metrics.GeocodeRequests.WithLabelValues(strategy, "error").Inc()
		return nil, fmt.Errorf("nominatim status %d: %s", resp.StatusCode(), resp.String())
	}

	places, err := parsePlaces(resp.Body())
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(strategy, "error").Inc()
		return nil, fmt.Errorf("decode nominatim response: %w", err)
	}

	outcome := "success"
	if len(places) == 0 {
		outcome = "empty"
	}
	c.metrics.GeocodeRequests.WithLabelValues(strategy, outcome).Inc()
	return places, nil
}

// parsePlaces decodes the result list, preserving each raw record for the
// caller. Entries with unparseable coordinates are skipped.
func parsePlaces(body []byte) ([]domain.Place, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, err
	}

	places := make([]domain.Place, 0, len(raws))
	for _, raw := range raws {
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		lat, errLat := strconv.ParseFloat(rec.Lat, 64)
		lng, errLng := strconv.ParseFloat(rec.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		places = append(places, domain.Place{
			Lat:         lat,
			Lng:         lng,
			CountryCode: rec.Address.CountryCode,
			State:       rec.Address.State,
			StateCode:   rec.Address.StateCode,
			RegionTag:   rec.Address.ISO3166Lvl4,
			DisplayName: rec.DisplayName,
			Raw:         raw,
		})
	}
	return places, nil
}

// Nominatim API response types. Coordinates arrive as strings.

type record struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Address     address `json:"address"`
}

type address struct {
	State       string `json:"state"`
	StateCode   string `json:"state_code"`
	CountryCode string `json:"country_code"`
	ISO3166Lvl4 string `json:"ISO3166-2-lvl4"`
}
