// Package fetch fans incident queries out to the configured sources and
// shapes the combined result: dedupe, day-window filtering, and the
// visibility fallback that keeps the map from going blank.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/crime-incident-service/internal/domain"
	"github.com/couchcryptid/crime-incident-service/internal/observability"
)

// Options are the per-request behavior flags.
type Options struct {
	// Strict disables the visibility fallback: an empty day window stays empty.
	Strict bool
	// Debug attaches per-source diagnostics to the result.
	Debug bool
	// Mock serves the synthetic incident set without touching any upstream.
	Mock bool
}

// Result is the combined incident response.
type Result struct {
	RadiusKm  float64           `json:"radiusKm"`
	Days      int               `json:"days"`
	Count     int               `json:"count"`
	Incidents []domain.Incident `json:"incidents"`
	Notice    string            `json:"notice,omitempty"`
	Debug     *Debug            `json:"debug,omitempty"`
}

// Debug carries request diagnostics, attached only when asked for.
type Debug struct {
	Lat            float64                  `json:"lat"`
	Lng            float64                  `json:"lng"`
	Sources        []string                 `json:"sources"`
	Attempts       []domain.UpstreamAttempt `json:"attempts,omitempty"`
	SourceErrors   map[string]string        `json:"sourceErrors,omitempty"`
	PreFilterCount int                      `json:"preFilterCount"`
	FilterFallback bool                     `json:"filterFallback"`
	Synthetic      bool                     `json:"synthetic"`
}

// Fetcher queries all sources concurrently and merges their incidents.
type Fetcher struct {
	sources []domain.IncidentSource
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Fetcher over the given sources.
func New(sources []domain.IncidentSource, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		sources: sources,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch resolves one incident query. Individual source failures never fail
// the request; a request with zero usable sources is served synthetically so
// the dashboard still renders.
func (f *Fetcher) Fetch(ctx context.Context, q domain.FetchQuery, opts Options) Result {
	var incidents []domain.Incident
	var attempts []domain.UpstreamAttempt
	var sourceErrors map[string]string
	synthetic := false

	if opts.Mock || len(f.sources) == 0 {
		incidents = domain.SyntheticIncidents(q.Lat, q.Lng)
		synthetic = true
		f.metrics.SyntheticResponses.Inc()
		if !opts.Mock {
			f.logger.Warn("no incident sources configured, serving synthetic data")
		}
	} else {
		incidents, attempts, sourceErrors = f.fanOut(ctx, q)
	}

	merged := dedupe(incidents)
	visible, fellBack := f.filterByDays(merged, q.Days, opts.Strict)

	result := Result{
		RadiusKm:  q.RadiusKm,
		Days:      q.Days,
		Count:     len(visible),
		Incidents: visible,
	}
	if fellBack {
		result.Notice = fmt.Sprintf(
			"No incidents in the last %d day(s) within %gkm; showing nearby historical results.",
			q.Days, q.RadiusKm,
		)
	}
	if opts.Debug {
		result.Debug = &Debug{
			Lat:            q.Lat,
			Lng:            q.Lng,
			Sources:        f.sourceTags(),
			Attempts:       attempts,
			SourceErrors:   sourceErrors,
			PreFilterCount: len(merged),
			FilterFallback: fellBack,
			Synthetic:      synthetic,
		}
	}
	return result
}

type sourceOutcome struct {
	incidents []domain.Incident
	attempts  []domain.UpstreamAttempt
	err       error
}

// fanOut queries every source concurrently and waits for all of them. The
// merge order follows the configured source order so responses are stable.
func (f *Fetcher) fanOut(ctx context.Context, q domain.FetchQuery) ([]domain.Incident, []domain.UpstreamAttempt, map[string]string) {
	outcomes := make([]sourceOutcome, len(f.sources))
	var wg sync.WaitGroup
	for i, src := range f.sources {
		wg.Add(1)
		go func(i int, src domain.IncidentSource) {
			defer wg.Done()
			incidents, attempts, err := src.Fetch(ctx, q)
			outcomes[i] = sourceOutcome{incidents: incidents, attempts: attempts, err: err}
		}(i, src)
	}
	wg.Wait()

	var incidents []domain.Incident
	var attempts []domain.UpstreamAttempt
	sourceErrors := make(map[string]string)
	for i, out := range outcomes {
		tag := f.sources[i].Tag()
		attempts = append(attempts, out.attempts...)
		if out.err != nil {
			f.logger.Error("incident source failed", "source", tag, "error", out.err)
			f.metrics.SourceErrors.WithLabelValues(tag).Inc()
			sourceErrors[tag] = out.err.Error()
			continue
		}
		f.metrics.IncidentsFetched.WithLabelValues(tag).Add(float64(len(out.incidents)))
		incidents = append(incidents, out.incidents...)
	}
	return incidents, attempts, sourceErrors
}

// filterByDays keeps incidents inside the day window. When the window would
// empty a non-empty set and strict mode is off, the unfiltered set is
// returned instead and the second return value reports the fallback.
func (f *Fetcher) filterByDays(incidents []domain.Incident, days int, strict bool) ([]domain.Incident, bool) {
	cutoff := f.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)

	filtered := make([]domain.Incident, 0, len(incidents))
	for _, inc := range incidents {
		t, ok := inc.OccurredAt()
		// Records with unparseable timestamps stay visible.
		if ok && t.Before(cutoff) {
			continue
		}
		filtered = append(filtered, inc)
	}

	if len(filtered) == 0 && len(incidents) > 0 && !strict {
		f.metrics.FilterFallback.Inc()
		f.logger.Info("day window emptied results, falling back to historical set",
			"days", days, "historical", len(incidents))
		return incidents, true
	}
	return filtered, false
}

// dedupe drops duplicate incidents by (source, id), keeping the first
// occurrence. Overlapping feeds and retried strategies can both repeat rows.
func dedupe(incidents []domain.Incident) []domain.Incident {
	seen := make(map[string]struct{}, len(incidents))
	out := make([]domain.Incident, 0, len(incidents))
	for _, inc := range incidents {
		key := inc.Source + "|" + inc.ID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, inc)
	}
	return out
}

func (f *Fetcher) sourceTags() []string {
	tags := make([]string, len(f.sources))
	for i, src := range f.sources {
		tags[i] = src.Tag()
	}
	return tags
}
