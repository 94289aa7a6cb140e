package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ErrNoResults reports that every geocoding strategy returned an empty
// result list.
var ErrNoResults = errors.New("no results")

// GeocodeQuery is one geocoding service round-trip. Exactly one of
// PostalCode (structured lookup) or FreeText is set.
type GeocodeQuery struct {
	PostalCode string
	FreeText   string
}

// Place is one geocoding candidate with the address metadata needed for
// region preference. Raw preserves the provider's record for the caller.
type Place struct {
	Lat         float64
	Lng         float64
	CountryCode string // ISO-3166 alpha-2, lower case
	State       string
	StateCode   string
	RegionTag   string // ISO3166-2 subdivision tag, e.g. "CA-ON"
	DisplayName string
	Raw         json.RawMessage
}

// Geocoder executes a single geocoding query against the upstream service.
type Geocoder interface {
	Search(ctx context.Context, q GeocodeQuery) ([]Place, error)
}

// GeocodeResult is the resolved center point for a postal code.
type GeocodeResult struct {
	Lat float64         `json:"lat"`
	Lng float64         `json:"lng"`
	Raw json.RawMessage `json:"raw"`
}

// RegionPreference scopes geocoding queries and ranks candidates toward the
// dashboard's operating region.
type RegionPreference struct {
	CountryCode string // query scope, e.g. "ca"
	CountryName string // free-text qualifier, e.g. "Canada"
	RegionName  string // e.g. "Ontario"
	RegionCode  string // e.g. "ON"
}

// fsaPattern matches a Canadian forward sortation area: letter, digit, letter.
var fsaPattern = regexp.MustCompile(`^[A-Z][0-9][A-Z]$`)

// ResolvePostal resolves free-text postal input to a best-effort point by
// trying a ranked sequence of query strategies, stopping at the first that
// yields candidates. Individual attempt failures are logged and skipped; an
// error surfaces only when every attempt failed at the transport level.
func ResolvePostal(ctx context.Context, geocoder Geocoder, pref RegionPreference, postal string, logger *slog.Logger) (GeocodeResult, error) {
	compact := strings.ToUpper(strings.Join(strings.Fields(postal), ""))
	if compact == "" {
		return GeocodeResult{}, ErrNoResults
	}

	queries := postalQueries(compact, pref)

	var lastErr error
	attempts := 0
	failures := 0
	for _, q := range queries {
		attempts++
		places, err := geocoder.Search(ctx, q)
		if err != nil {
			failures++
			lastErr = err
			logger.Warn("geocode attempt failed",
				"postal", compact,
				"query", q.PostalCode+q.FreeText,
				"error", err,
			)
			continue
		}
		if len(places) == 0 {
			continue
		}
		pick := preferRegion(places, pref)
		return GeocodeResult{Lat: pick.Lat, Lng: pick.Lng, Raw: pick.Raw}, nil
	}

	if failures == attempts && lastErr != nil {
		return GeocodeResult{}, fmt.Errorf("geocode %q: all attempts failed: %w", compact, lastErr)
	}
	return GeocodeResult{}, ErrNoResults
}

// postalQueries builds the ranked strategy chain for a compacted postal code.
func postalQueries(compact string, pref RegionPreference) []GeocodeQuery {
	queries := []GeocodeQuery{
		{PostalCode: compact},
		{FreeText: compact},
		{FreeText: fmt.Sprintf("%s, %s, %s", compact, pref.RegionName, pref.CountryName)},
		{FreeText: fmt.Sprintf("%s, %s", compact, pref.CountryName)},
	}
	// FSA fallback: the first three characters approximate the area centroid.
	if len(compact) >= 3 {
		if fsa := compact[:3]; fsaPattern.MatchString(fsa) && fsa != compact {
			queries = append(queries, GeocodeQuery{
				FreeText: fmt.Sprintf("%s, %s, %s", fsa, pref.RegionName, pref.CountryName),
			})
		}
	}
	return queries
}

// preferRegion picks the candidate whose address metadata indicates the
// target region, then the target country, then the first result.
func preferRegion(places []Place, pref RegionPreference) Place {
	var inCountry []Place
	for _, p := range places {
		if p.CountryCode == pref.CountryCode {
			inCountry = append(inCountry, p)
		}
	}
	for _, p := range inCountry {
		if inRegion(p, pref) {
			return p
		}
	}
	if len(inCountry) > 0 {
		return inCountry[0]
	}
	return places[0]
}

func inRegion(p Place, pref RegionPreference) bool {
	switch {
	case pref.RegionName != "" && strings.EqualFold(p.State, pref.RegionName):
		return true
	case pref.RegionCode != "" && strings.EqualFold(p.StateCode, pref.RegionCode):
		return true
	case pref.RegionCode != "" && strings.Contains(strings.ToUpper(p.RegionTag),
		strings.ToUpper(pref.CountryCode)+"-"+strings.ToUpper(pref.RegionCode)):
		return true
	case pref.RegionName != "" && strings.Contains(strings.ToLower(p.DisplayName), strings.ToLower(pref.RegionName)):
		return true
	}
	return false
}
