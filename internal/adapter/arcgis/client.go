// Package arcgis is a thin query client for ArcGIS FeatureServer layers.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/crime-incident-service/internal/domain"
	"github.com/couchcryptid/crime-incident-service/internal/observability"
)

// Feature is one record of a query response: an untyped attribute bag plus
// optional point geometry.
type Feature struct {
	Attributes domain.Attributes `json:"attributes"`
	Geometry   *domain.Geometry  `json:"geometry"`
}

// Response is a FeatureServer query response. FeatureServer reports
// request-level faults as a 200 with an error body.
type Response struct {
	Features []Feature `json:"features"`
	Error    *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client issues FeatureServer /query requests. Fallback strategies belong to
// the sources that use it; the client performs exactly one round-trip per
// call so every attempt is observable.
type Client struct {
	http    *resty.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a FeatureServer query client with a per-request timeout.
func NewClient(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		http:    resty.New().SetTimeout(timeout),
		metrics: metrics,
		logger:  logger,
	}
}

// Query runs one /query round-trip against a layer URL and records it as an
// attempt. A non-nil error always comes with the attempt describing it.
func (c *Client) Query(ctx context.Context, layerURL, tag, note string, params map[string]string) ([]Feature, domain.UpstreamAttempt, error) {
	attempt := domain.UpstreamAttempt{Source: tag, Note: note, Count: -1}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(layerURL + "/query")
	c.metrics.UpstreamDuration.WithLabelValues(tag).Observe(time.Since(start).Seconds())

	if resp != nil && resp.Request != nil {
		attempt.URL = resp.Request.URL
	}
	if err != nil {
		attempt.Error = err.Error()
		return nil, attempt, fmt.Errorf("feature service request: %w", err)
	}

	attempt.Status = resp.StatusCode()
	if resp.StatusCode() != 200 {
		attempt.Error = fmt.Sprintf("status %d", resp.StatusCode())
		return nil, attempt, fmt.Errorf("feature service status %d: %s", resp.StatusCode(), resp.String())
	}

	var parsed Response
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		attempt.Error = err.Error()
		return nil, attempt, fmt.Errorf("decode feature service response: %w", err)
	}
	if parsed.Error != nil {
		attempt.Error = parsed.Error.Message
		return nil, attempt, fmt.Errorf("feature service error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	attempt.Count = len(parsed.Features)
	return parsed.Features, attempt, nil
}
