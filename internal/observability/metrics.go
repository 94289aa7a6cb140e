package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the geocoding and
// incident-fetch paths.
type Metrics struct {
	GeocodeRequests *prometheus.CounterVec // labels: strategy={postalcode,freetext}, outcome={success,empty,error}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}

	UpstreamDuration   *prometheus.HistogramVec // labels: source
	IncidentsFetched   *prometheus.CounterVec   // labels: source
	SourceErrors       *prometheus.CounterVec   // labels: source
	FilterFallback     prometheus.Counter
	SyntheticResponses prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.GeocodeRequests,
		m.GeocodeCache,
		m.UpstreamDuration,
		m.IncidentsFetched,
		m.SourceErrors,
		m.FilterFallback,
		m.SyntheticResponses,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crime_api",
			Name:      "geocode_requests_total",
			Help:      "Geocoding service requests by query strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crime_api",
			Name:      "geocode_cache_total",
			Help:      "Geocode cache lookups by result.",
		}, []string{"result"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crime_api",
			Name:      "upstream_request_duration_seconds",
			Help:      "Feature service request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		IncidentsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crime_api",
			Name:      "incidents_fetched_total",
			Help:      "Normalized incidents returned by upstream sources.",
		}, []string{"source"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crime_api",
			Name:      "source_errors_total",
			Help:      "Upstream source fetches that failed entirely.",
		}, []string{"source"}),
		FilterFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crime_api",
			Name:      "filter_fallback_total",
			Help:      "Responses where day-window filtering emptied the result set and historical records were returned instead.",
		}),
		SyntheticResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crime_api",
			Name:      "synthetic_responses_total",
			Help:      "Responses served from the synthetic incident set.",
		}),
	}
}
