package domain

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPref = RegionPreference{
	CountryCode: "ca",
	CountryName: "Canada",
	RegionName:  "Ontario",
	RegionCode:  "ON",
}

// scriptedGeocoder records every query and answers from a script keyed by the
// query's postal code or free text.
type scriptedGeocoder struct {
	calls     []GeocodeQuery
	responses map[string][]Place
	errors    map[string]error
}

func (g *scriptedGeocoder) Search(_ context.Context, q GeocodeQuery) ([]Place, error) {
	g.calls = append(g.calls, q)
	key := q.PostalCode + q.FreeText
	if err, ok := g.errors[key]; ok {
		return nil, err
	}
	return g.responses[key], nil
}

func place(lat, lng float64, state, display string) Place {
	return Place{Lat: lat, Lng: lng, CountryCode: "ca", State: state, DisplayName: display}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestResolvePostal(t *testing.T) {
	ctx := context.Background()

	t.Run("structured lookup wins immediately", func(t *testing.T) {
		g := &scriptedGeocoder{responses: map[string][]Place{
			"L5B3Y1": {place(43.59, -79.64, "Ontario", "Mississauga, Ontario, Canada")},
		}}

		result, err := ResolvePostal(ctx, g, testPref, "l5b 3y1", testLogger())
		require.NoError(t, err)
		assert.Equal(t, 43.59, result.Lat)
		assert.Equal(t, -79.64, result.Lng)
		require.Len(t, g.calls, 1)
		assert.Equal(t, "L5B3Y1", g.calls[0].PostalCode)
		assert.Empty(t, g.calls[0].FreeText)
	})

	t.Run("falls through the strategy chain in order", func(t *testing.T) {
		g := &scriptedGeocoder{responses: map[string][]Place{
			"L5B3Y1, Ontario, Canada": {place(43.59, -79.64, "Ontario", "Mississauga")},
		}}

		result, err := ResolvePostal(ctx, g, testPref, "L5B 3Y1", testLogger())
		require.NoError(t, err)
		assert.Equal(t, 43.59, result.Lat)

		require.Len(t, g.calls, 3)
		assert.Equal(t, "L5B3Y1", g.calls[0].PostalCode)
		assert.Equal(t, "L5B3Y1", g.calls[1].FreeText)
		assert.Equal(t, "L5B3Y1, Ontario, Canada", g.calls[2].FreeText)
	})

	t.Run("FSA centroid is the last resort", func(t *testing.T) {
		g := &scriptedGeocoder{responses: map[string][]Place{
			"L5B, Ontario, Canada": {place(43.58, -79.62, "Ontario", "L5B, Mississauga")},
		}}

		result, err := ResolvePostal(ctx, g, testPref, "L5B 3Y1", testLogger())
		require.NoError(t, err)
		assert.Equal(t, 43.58, result.Lat)

		require.Len(t, g.calls, 5)
		assert.Equal(t, "L5B3Y1, Canada", g.calls[3].FreeText)
		assert.Equal(t, "L5B, Ontario, Canada", g.calls[4].FreeText)
	})

	t.Run("bare FSA input does not repeat itself", func(t *testing.T) {
		g := &scriptedGeocoder{}

		_, err := ResolvePostal(ctx, g, testPref, "L5B", testLogger())
		assert.ErrorIs(t, err, ErrNoResults)
		// postalcode, freetext, "+region, country", "+country"; no extra FSA pass.
		assert.Len(t, g.calls, 4)
	})

	t.Run("prefers the target region over earlier candidates", func(t *testing.T) {
		g := &scriptedGeocoder{responses: map[string][]Place{
			"L5B3Y1": {
				place(49.28, -123.12, "British Columbia", "Vancouver, British Columbia, Canada"),
				place(43.59, -79.64, "Ontario", "Mississauga, Ontario, Canada"),
			},
		}}

		result, err := ResolvePostal(ctx, g, testPref, "L5B 3Y1", testLogger())
		require.NoError(t, err)
		assert.Equal(t, 43.59, result.Lat)
	})

	t.Run("prefers the target country when no regional match", func(t *testing.T) {
		g := &scriptedGeocoder{responses: map[string][]Place{
			"L5B3Y1": {
				{Lat: 40.7, Lng: -74.0, CountryCode: "us", State: "New York"},
				place(49.28, -123.12, "British Columbia", "Vancouver"),
			},
		}}

		result, err := ResolvePostal(ctx, g, testPref, "L5B 3Y1", testLogger())
		require.NoError(t, err)
		assert.Equal(t, 49.28, result.Lat)
	})

	t.Run("region match via subdivision tag", func(t *testing.T) {
		g := &scriptedGeocoder{responses: map[string][]Place{
			"L5B3Y1": {
				place(49.28, -123.12, "British Columbia", "Vancouver"),
				{Lat: 43.59, Lng: -79.64, CountryCode: "ca", RegionTag: "CA-ON"},
			},
		}}

		result, err := ResolvePostal(ctx, g, testPref, "L5B 3Y1", testLogger())
		require.NoError(t, err)
		assert.Equal(t, 43.59, result.Lat)
	})

	t.Run("blank input never reaches the geocoder", func(t *testing.T) {
		g := &scriptedGeocoder{}

		_, err := ResolvePostal(ctx, g, testPref, "   ", testLogger())
		assert.ErrorIs(t, err, ErrNoResults)
		assert.Empty(t, g.calls)
	})

	t.Run("exhausted chain reports no results", func(t *testing.T) {
		g := &scriptedGeocoder{}

		_, err := ResolvePostal(ctx, g, testPref, "L5B 3Y1", testLogger())
		assert.ErrorIs(t, err, ErrNoResults)
		assert.Len(t, g.calls, 5)
	})

	t.Run("partial failures still yield no results", func(t *testing.T) {
		g := &scriptedGeocoder{errors: map[string]error{
			"L5B3Y1": errors.New("upstream 503"),
		}}

		_, err := ResolvePostal(ctx, g, testPref, "L5B 3Y1", testLogger())
		assert.ErrorIs(t, err, ErrNoResults)
		assert.Len(t, g.calls, 5)
	})

	t.Run("total failure surfaces the transport error", func(t *testing.T) {
		boom := errors.New("upstream 503")
		g := &scriptedGeocoder{errors: map[string]error{
			"L5B3Y1":                  boom,
			"L5B3Y1, Ontario, Canada": boom,
			"L5B3Y1, Canada":          boom,
			"L5B, Ontario, Canada":    boom,
		}}

		_, err := ResolvePostal(ctx, g, testPref, "L5B 3Y1", testLogger())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoResults)
		assert.ErrorIs(t, err, boom)
	})
}
