package domain

import (
	"context"
	"fmt"
	"time"
)

// Incident is the canonical record produced by normalization. Timestamps are
// ISO-8601 instants; Lat/Lng are WGS84 degrees and may be absent when the
// upstream record carried no usable coordinates.
type Incident struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Timestamp string   `json:"timestamp"`
	Address   string   `json:"address,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// HasCoordinates reports whether both coordinates are present.
func (i Incident) HasCoordinates() bool {
	return i.Lat != nil && i.Lng != nil
}

// OccurredAt parses the incident timestamp. ok is false when the timestamp
// does not parse; callers treat such records as passing date filters.
func (i Incident) OccurredAt() (t time.Time, ok bool) {
	t, err := time.Parse(time.RFC3339, i.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FetchQuery describes one incident lookup around a center point.
type FetchQuery struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
	Days     int
}

// UpstreamAttempt records one upstream round-trip for diagnostics.
type UpstreamAttempt struct {
	Source string `json:"source"`
	Note   string `json:"note"`
	URL    string `json:"url,omitempty"`
	Status int    `json:"status,omitempty"`
	Count  int    `json:"count"`
	Error  string `json:"error,omitempty"`
}

// IncidentSource fetches incidents near a point from one upstream feed.
// Implementations return the attempts they made regardless of outcome so the
// fetcher can surface them in debug output.
type IncidentSource interface {
	// Tag identifies the feed in incident records and dedupe keys.
	Tag() string
	Fetch(ctx context.Context, q FetchQuery) ([]Incident, []UpstreamAttempt, error)
}

// SyntheticIncidents returns a fixed three-record set positioned near the
// query point, used when no upstream source is configured or mock mode is
// requested. The offsets and types are stable so the UI and tests can rely
// on them.
func SyntheticIncidents(lat, lng float64) []Incident {
	now := clock.Now()
	mk := func(i int, dx, dy float64, typ string) Incident {
		la := lat + dx
		ln := lng + dy
		return Incident{
			ID:        fmt.Sprintf("mock-%d", i),
			Type:      typ,
			Timestamp: now.Add(-time.Duration(i) * time.Hour).UTC().Format(time.RFC3339),
			Address:   "Near searched area",
			Lat:       &la,
			Lng:       &ln,
			Source:    "mock",
		}
	}
	return []Incident{
		mk(1, 0.002, -0.001, "Police - Property Damage"),
		mk(2, -0.0015, 0.001, "Police - Assault"),
		mk(4, 0.001, 0.0015, "Police - Break and Enter"),
	}
}
