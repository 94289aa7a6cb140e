package arcgis

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/crime-incident-service/internal/observability"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(2*time.Second, observability.NewMetricsForTesting(), slog.New(slog.DiscardHandler))
	return client, srv.URL + "/FeatureServer/0"
}

func TestClientQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes features and records the attempt", func(t *testing.T) {
		var gotPath string
		var gotQuery map[string][]string
		client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotQuery = r.URL.Query()
			w.Write([]byte(`{"features":[
				{"attributes":{"OBJECTID":1,"OFFENCE":"Assault"},"geometry":{"x":-79.38,"y":43.65}},
				{"attributes":{"OBJECTID":2,"OFFENCE":"Robbery"}}
			]}`))
		})

		features, attempt, err := client.Query(ctx, url, "toronto-mci", "attribute-bbox", map[string]string{
			"f":     "json",
			"where": "1=1",
		})
		require.NoError(t, err)

		assert.Equal(t, "/FeatureServer/0/query", gotPath)
		assert.Equal(t, "json", gotQuery["f"][0])
		assert.Equal(t, "1=1", gotQuery["where"][0])

		require.Len(t, features, 2)
		assert.Equal(t, float64(1), features[0].Attributes["OBJECTID"])
		require.NotNil(t, features[0].Geometry)
		assert.Equal(t, 43.65, features[0].Geometry.Y)
		assert.Nil(t, features[1].Geometry)

		assert.Equal(t, "toronto-mci", attempt.Source)
		assert.Equal(t, "attribute-bbox", attempt.Note)
		assert.Equal(t, 200, attempt.Status)
		assert.Equal(t, 2, attempt.Count)
		assert.Empty(t, attempt.Error)
		assert.Contains(t, attempt.URL, "/FeatureServer/0/query")
	})

	t.Run("error body on 200 is an error", func(t *testing.T) {
		client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":{"code":400,"message":"Invalid query parameters"}}`))
		})

		_, attempt, err := client.Query(ctx, url, "peel", "buffer-meters", map[string]string{"f": "json"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid query parameters")
		assert.Equal(t, "Invalid query parameters", attempt.Error)
		assert.Equal(t, -1, attempt.Count)
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, attempt, err := client.Query(ctx, url, "peel", "envelope", map[string]string{"f": "json"})
		require.Error(t, err)
		assert.Equal(t, 502, attempt.Status)
		assert.Equal(t, "status 502", attempt.Error)
	})

	t.Run("malformed body is an error", func(t *testing.T) {
		client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>maintenance</html>`))
		})

		_, _, err := client.Query(ctx, url, "peel", "envelope", map[string]string{"f": "json"})
		assert.Error(t, err)
	})
}
