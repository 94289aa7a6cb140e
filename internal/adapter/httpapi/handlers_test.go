package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/crime-incident-service/internal/config"
	"github.com/couchcryptid/crime-incident-service/internal/domain"
	"github.com/couchcryptid/crime-incident-service/internal/fetch"
	"github.com/couchcryptid/crime-incident-service/internal/observability"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubGeocoder struct {
	calls  int
	places []domain.Place
	err    error
}

func (g *stubGeocoder) Search(_ context.Context, _ domain.GeocodeQuery) ([]domain.Place, error) {
	g.calls++
	return g.places, g.err
}

type stubSource struct {
	calls     int
	incidents []domain.Incident
}

func (s *stubSource) Tag() string { return "stub" }

func (s *stubSource) Fetch(_ context.Context, _ domain.FetchQuery) ([]domain.Incident, []domain.UpstreamAttempt, error) {
	s.calls++
	return s.incidents, nil, nil
}

func newTestServer(geocoder domain.Geocoder, sources ...domain.IncidentSource) *Server {
	cfg := &config.Config{
		HTTPAddr:             ":0",
		TorontoMCIFeatureURL: "https://example.com/mci/FeatureServer/0",
		GeocodeCountry:       "ca",
		GeocodeCountryName:   "Canada",
		GeocodeRegionName:    "Ontario",
		GeocodeRegionCode:    "ON",
	}
	metrics := observability.NewMetricsForTesting()
	logger := slog.New(slog.DiscardHandler)
	fetcher := fetch.New(sources, clockwork.NewFakeClockAt(testNow), metrics, logger)
	return New(cfg, geocoder, fetcher, metrics, logger)
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func stubIncident(id string, ts time.Time) domain.Incident {
	lat, lng := 43.651, -79.381
	return domain.Incident{
		ID:        id,
		Type:      "Assault",
		Timestamp: ts.UTC().Format(time.RFC3339),
		Lat:       &lat,
		Lng:       &lng,
		Source:    "stub",
	}
}

func TestGeocodeEndpoint(t *testing.T) {
	t.Run("missing postal is a 400 and never calls upstream", func(t *testing.T) {
		g := &stubGeocoder{}
		rec := get(t, newTestServer(g), "/geocode")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, g.calls)
	})

	t.Run("blank postal is a 400 and never calls upstream", func(t *testing.T) {
		g := &stubGeocoder{}
		rec := get(t, newTestServer(g), "/geocode?postal=%20%20")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, g.calls)
	})

	t.Run("resolves a postal code", func(t *testing.T) {
		g := &stubGeocoder{places: []domain.Place{{
			Lat: 43.589, Lng: -79.644, CountryCode: "ca", State: "Ontario",
			Raw: json.RawMessage(`{"display_name":"Mississauga"}`),
		}}}
		rec := get(t, newTestServer(g), "/geocode?postal=L5B+3Y1")

		require.Equal(t, http.StatusOK, rec.Code)
		var body domain.GeocodeResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 43.589, body.Lat)
		assert.Equal(t, -79.644, body.Lng)
		assert.NotEmpty(t, body.Raw)
	})

	t.Run("no candidates anywhere is a 404", func(t *testing.T) {
		g := &stubGeocoder{}
		rec := get(t, newTestServer(g), "/geocode?postal=X0X0X0")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "no results")
	})

	t.Run("total upstream failure is a 500", func(t *testing.T) {
		g := &stubGeocoder{err: errors.New("nominatim down")}
		rec := get(t, newTestServer(g), "/geocode?postal=L5B3Y1")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestIncidentsEndpoint(t *testing.T) {
	t.Run("missing coordinates are a 400", func(t *testing.T) {
		src := &stubSource{}
		rec := get(t, newTestServer(&stubGeocoder{}, src), "/incidents?lng=-79.38")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, src.calls)
	})

	t.Run("non-numeric coordinates are a 400", func(t *testing.T) {
		rec := get(t, newTestServer(&stubGeocoder{}, &stubSource{}), "/incidents?lat=abc&lng=-79.38")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("out of range coordinates are a 400", func(t *testing.T) {
		rec := get(t, newTestServer(&stubGeocoder{}, &stubSource{}), "/incidents?lat=95&lng=-79.38")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects oversized radius and window", func(t *testing.T) {
		rec := get(t, newTestServer(&stubGeocoder{}, &stubSource{}), "/incidents?lat=43.65&lng=-79.38&radiusKm=500")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = get(t, newTestServer(&stubGeocoder{}, &stubSource{}), "/incidents?lat=43.65&lng=-79.38&days=0")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("applies default radius and window", func(t *testing.T) {
		src := &stubSource{incidents: []domain.Incident{stubIncident("1", testNow.Add(-time.Hour))}}
		rec := get(t, newTestServer(&stubGeocoder{}, src), "/incidents?lat=43.65&lng=-79.38")

		require.Equal(t, http.StatusOK, rec.Code)
		var body fetch.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 2.0, body.RadiusKm)
		assert.Equal(t, 7, body.Days)
		assert.Equal(t, 1, body.Count)
		assert.Equal(t, 1, src.calls)
	})

	t.Run("mock mode returns the synthetic set without upstream calls", func(t *testing.T) {
		domain.SetClock(clockwork.NewFakeClockAt(testNow))
		defer domain.SetClock(nil)

		src := &stubSource{}
		rec := get(t, newTestServer(&stubGeocoder{}, src), "/incidents?lat=43.65&lng=-79.38&mock=1")

		require.Equal(t, http.StatusOK, rec.Code)
		var body fetch.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, 3, body.Count)
		assert.Equal(t, "mock-1", body.Incidents[0].ID)
		assert.Equal(t, 0, src.calls)
	})

	t.Run("old incidents fall back with a notice", func(t *testing.T) {
		src := &stubSource{incidents: []domain.Incident{stubIncident("old", testNow.Add(-60*24*time.Hour))}}
		rec := get(t, newTestServer(&stubGeocoder{}, src), "/incidents?lat=43.65&lng=-79.38")

		require.Equal(t, http.StatusOK, rec.Code)
		var body fetch.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Count)
		assert.Contains(t, body.Notice, "showing nearby historical results")
	})

	t.Run("strict mode keeps the window empty", func(t *testing.T) {
		src := &stubSource{incidents: []domain.Incident{stubIncident("old", testNow.Add(-60*24*time.Hour))}}
		rec := get(t, newTestServer(&stubGeocoder{}, src), "/incidents?lat=43.65&lng=-79.38&strict=1")

		require.Equal(t, http.StatusOK, rec.Code)
		var body fetch.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 0, body.Count)
		assert.Empty(t, body.Notice)
		assert.Contains(t, rec.Body.String(), `"incidents":[]`)
	})

	t.Run("debug payload only when requested", func(t *testing.T) {
		src := &stubSource{incidents: []domain.Incident{stubIncident("1", testNow.Add(-time.Hour))}}
		srv := newTestServer(&stubGeocoder{}, src)

		rec := get(t, srv, "/incidents?lat=43.65&lng=-79.38")
		assert.NotContains(t, rec.Body.String(), `"debug"`)

		rec = get(t, srv, "/incidents?lat=43.65&lng=-79.38&debug=1")
		var body fetch.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotNil(t, body.Debug)
		assert.Equal(t, 43.65, body.Debug.Lat)
	})
}

func TestMetaEndpoint(t *testing.T) {
	rec := get(t, newTestServer(&stubGeocoder{}), "/meta")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources  []string `json:"sources"`
		Defaults struct {
			RadiusKm float64 `json:"radiusKm"`
			Days     int     `json:"days"`
		} `json:"defaults"`
		Region struct {
			Country string `json:"country"`
			Name    string `json:"name"`
			Code    string `json:"code"`
		} `json:"region"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"toronto-mci"}, body.Sources)
	assert.Equal(t, 2.0, body.Defaults.RadiusKm)
	assert.Equal(t, 7, body.Defaults.Days)
	assert.Equal(t, "ca", body.Region.Country)
	assert.Equal(t, "Ontario", body.Region.Name)
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(&stubGeocoder{}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
