package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/couchcryptid/crime-incident-service/internal/adapter/arcgis"
	"github.com/couchcryptid/crime-incident-service/internal/config"
	"github.com/couchcryptid/crime-incident-service/internal/domain"
)

// mciOutFields is the exact field list the Toronto Police MCI layer is queried
// for. Keeping it explicit avoids paying for the layer's wide schema.
const mciOutFields = "OBJECTID,OFFENCE,MCI_CATEGORY,OCC_DATE,OCC_HOUR,REPORT_DATE,REPORT_HOUR,LAT_WGS84,LONG_WGS84,NEIGHBOURHOOD_140,NEIGHBOURHOOD_158"

const maxRecordCount = 1000

// MCISource queries the Toronto Police Major Crime Indicators layer. The
// layer carries WGS84 coordinates as plain attributes, so the query is a
// bounding-box WHERE clause rather than a server-side spatial filter, and
// results are re-checked against the true radius after normalization.
type MCISource struct {
	client *arcgis.Client
	url    string
	logger *slog.Logger
}

// NewMCISource creates the Toronto MCI source for the given layer URL.
func NewMCISource(client *arcgis.Client, url string, logger *slog.Logger) *MCISource {
	return &MCISource{client: client, url: url, logger: logger}
}

func (s *MCISource) Tag() string { return "toronto-mci" }

func (s *MCISource) Fetch(ctx context.Context, q domain.FetchQuery) ([]domain.Incident, []domain.UpstreamAttempt, error) {
	env := domain.BoundingEnvelope(q.Lat, q.Lng, q.RadiusKm)
	where := fmt.Sprintf(
		"LAT_WGS84 >= %s AND LAT_WGS84 <= %s AND LONG_WGS84 >= %s AND LONG_WGS84 <= %s",
		fmtCoord(env.YMin), fmtCoord(env.YMax), fmtCoord(env.XMin), fmtCoord(env.XMax),
	)
	params := map[string]string{
		"f":                           "json",
		"where":                       where,
		"outFields":                   mciOutFields,
		"orderByFields":               "OCC_DATE DESC",
		"resultRecordCount":           strconv.Itoa(maxRecordCount),
		"returnExceededLimitFeatures": "true",
		"returnGeometry":              "false",
	}

	features, attempt, err := s.client.Query(ctx, s.url, s.Tag(), "attribute-bbox", params)
	attempts := []domain.UpstreamAttempt{attempt}
	if err != nil {
		return nil, attempts, err
	}

	incidents := make([]domain.Incident, 0, len(features))
	for _, f := range features {
		inc := domain.NormalizeMCI(f.Attributes)
		if !inc.HasCoordinates() {
			continue
		}
		// The bbox over-selects at the corners; enforce the circular radius here.
		if domain.Haversine(q.Lat, q.Lng, *inc.Lat, *inc.Lng) > q.RadiusKm {
			continue
		}
		incidents = append(incidents, inc)
	}
	s.logger.Debug("mci fetch complete", "fetched", len(features), "within_radius", len(incidents))
	return incidents, attempts, nil
}

// SpatialSource queries a generic FeatureServer layer with server-side
// spatial filtering. Some servers reject buffered point queries, so it walks
// a chain of equivalent geometries: point buffer in meters, point buffer in
// kilometers, then a plain envelope intersect.
type SpatialSource struct {
	client *arcgis.Client
	url    string
	tag    string
	logger *slog.Logger
}

// NewSpatialSource creates a source for an arbitrary incident layer.
func NewSpatialSource(client *arcgis.Client, url, tag string, logger *slog.Logger) *SpatialSource {
	return &SpatialSource{client: client, url: url, tag: tag, logger: logger}
}

func (s *SpatialSource) Tag() string { return s.tag }

func (s *SpatialSource) Fetch(ctx context.Context, q domain.FetchQuery) ([]domain.Incident, []domain.UpstreamAttempt, error) {
	point := fmtCoord(q.Lng) + "," + fmtCoord(q.Lat)
	strategies := []struct {
		note   string
		params map[string]string
	}{
		{"buffer-meters", map[string]string{
			"geometry":     point,
			"geometryType": "esriGeometryPoint",
			"distance":     fmtCoord(q.RadiusKm * 1000),
			"units":        "esriSRUnit_Meter",
		}},
		{"buffer-kilometers", map[string]string{
			"geometry":     point,
			"geometryType": "esriGeometryPoint",
			"distance":     fmtCoord(q.RadiusKm),
			"units":        "esriSRUnit_Kilometer",
		}},
		{"envelope", map[string]string{
			"geometry":     envelopeJSON(q),
			"geometryType": "esriGeometryEnvelope",
		}},
	}

	var attempts []domain.UpstreamAttempt
	var lastErr error
	succeeded := false
	for _, strat := range strategies {
		params := map[string]string{
			"f":                 "json",
			"where":             "1=1",
			"outFields":         "*",
			"inSR":              "4326",
			"outSR":             "4326",
			"spatialRel":        "esriSpatialRelIntersects",
			"returnGeometry":    "true",
			"resultRecordCount": strconv.Itoa(maxRecordCount),
		}
		for k, v := range strat.params {
			params[k] = v
		}

		features, attempt, err := s.client.Query(ctx, s.url, s.tag, strat.note, params)
		attempts = append(attempts, attempt)
		if err != nil {
			s.logger.Debug("spatial strategy failed", "source", s.tag, "strategy", strat.note, "error", err)
			lastErr = err
			continue
		}
		succeeded = true
		if len(features) == 0 {
			continue
		}
		return s.normalize(features), attempts, nil
	}

	if !succeeded {
		return nil, attempts, lastErr
	}
	// Every strategy the server accepted came back empty.
	return []domain.Incident{}, attempts, nil
}

// normalize trusts the server-side spatial filter and only drops records that
// carry no usable coordinates at all.
func (s *SpatialSource) normalize(features []arcgis.Feature) []domain.Incident {
	incidents := make([]domain.Incident, 0, len(features))
	for _, f := range features {
		inc := domain.Normalize(f.Attributes, f.Geometry, s.tag)
		if !inc.HasCoordinates() {
			continue
		}
		incidents = append(incidents, inc)
	}
	return incidents
}

func envelopeJSON(q domain.FetchQuery) string {
	env := domain.BoundingEnvelope(q.Lat, q.Lng, q.RadiusKm)
	payload := struct {
		domain.Envelope
		SpatialReference struct {
			WKID int `json:"wkid"`
		} `json:"spatialReference"`
	}{Envelope: env}
	payload.SpatialReference.WKID = 4326
	data, _ := json.Marshal(payload)
	return string(data)
}

func fmtCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// BuildSources assembles the configured incident sources in a stable order:
// the Toronto MCI layer first when configured, then the generic spatial
// layers sorted by tag.
func BuildSources(cfg *config.Config, client *arcgis.Client, logger *slog.Logger) []domain.IncidentSource {
	var sources []domain.IncidentSource
	if cfg.TorontoMCIFeatureURL != "" {
		sources = append(sources, NewMCISource(client, cfg.TorontoMCIFeatureURL, logger))
	}

	tags := make([]string, 0, len(cfg.ArcGISSources))
	for tag := range cfg.ArcGISSources {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		sources = append(sources, NewSpatialSource(client, cfg.ArcGISSources[tag], tag, logger))
	}
	return sources
}
