// Command sourcecheck probes every configured incident feed around a center
// point and validates that the responses normalize into usable records. Run
// it after adding or changing a feed URL to confirm the layer's schema is
// covered by the normalizer.
//
// Usage:
//
//	go run ./cmd/sourcecheck -lat 43.6532 -lng -79.3832 -radius 5 -days 30
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/crime-incident-service/internal/adapter/arcgis"
	"github.com/couchcryptid/crime-incident-service/internal/config"
	"github.com/couchcryptid/crime-incident-service/internal/domain"
	"github.com/couchcryptid/crime-incident-service/internal/fetch"
	"github.com/couchcryptid/crime-incident-service/internal/observability"
)

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	lat := flag.Float64("lat", 43.6532, "probe center latitude")
	lng := flag.Float64("lng", -79.3832, "probe center longitude")
	radius := flag.Float64("radius", 5, "probe radius in km")
	days := flag.Int("days", 30, "probe day window")
	timeout := flag.Duration("timeout", 30*time.Second, "overall probe timeout")
	flag.Parse()

	if code := run(*lat, *lng, *radius, *days, *timeout); code != 0 {
		os.Exit(code)
	}
}

func run(lat, lng, radius float64, days int, timeout time.Duration) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	metrics := observability.NewMetricsForTesting()

	fmt.Println("=== Incident Source Validation ===")
	fmt.Println()

	cfgPhase := validateConfig(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := arcgis.NewClient(cfg.UpstreamTimeout, metrics, logger)
	sources := fetch.BuildSources(cfg, client, logger)
	q := domain.FetchQuery{Lat: lat, Lng: lng, RadiusKm: radius, Days: days}

	results := probeSources(ctx, sources, q)

	phases := []*phase{
		cfgPhase,
		validateConnectivity(results),
		validateCoverage(results),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll source checks passed.")
		return 0
	}
	fmt.Println("\nSource check FAILED.")
	return 1
}

// probeResult is one source's fetch outcome.
type probeResult struct {
	tag       string
	incidents []domain.Incident
	attempts  []domain.UpstreamAttempt
	err       error
}

func probeSources(ctx context.Context, sources []domain.IncidentSource, q domain.FetchQuery) []probeResult {
	results := make([]probeResult, 0, len(sources))
	for _, src := range sources {
		incidents, attempts, err := src.Fetch(ctx, q)
		results = append(results, probeResult{tag: src.Tag(), incidents: incidents, attempts: attempts, err: err})
		fmt.Printf("%s: %d incidents, %d attempts\n", src.Tag(), len(incidents), len(attempts))
	}
	return results
}

// ── Phase 1: Configuration ──

func validateConfig(cfg *config.Config) *phase {
	p := &phase{name: "Phase 1: Configuration"}
	if !cfg.HasSources() {
		p.errorf("no incident sources configured (set TORONTO_MCI_FEATURE_URL or ARCGIS_SOURCES)")
	}
	return p
}

// ── Phase 2: Connectivity ──
// Every configured source must answer at least one query strategy.

func validateConnectivity(results []probeResult) *phase {
	p := &phase{name: "Phase 2: Connectivity"}
	for _, r := range results {
		if r.err != nil {
			p.errorf("%s: fetch failed: %v", r.tag, r.err)
			continue
		}
		for _, a := range r.attempts {
			if a.Error != "" {
				p.errorf("%s: attempt %q failed: %s", r.tag, a.Note, a.Error)
			}
		}
	}
	return p
}

// ── Phase 3: Normalization Coverage ──
// Returned records must carry the fields the dashboard renders.

func validateCoverage(results []probeResult) *phase {
	p := &phase{name: "Phase 3: Normalization Coverage"}
	for _, r := range results {
		if r.err != nil || len(r.incidents) == 0 {
			continue
		}

		var noType, noTime, noAddress int
		for i := range r.incidents {
			inc := &r.incidents[i]
			if inc.ID == "" {
				p.errorf("%s: incident %d has empty id", r.tag, i)
			}
			if !inc.HasCoordinates() {
				p.errorf("%s: incident %s has no coordinates", r.tag, inc.ID)
			}
			if inc.Type == "" || inc.Type == "Incident" {
				noType++
			}
			if _, ok := inc.OccurredAt(); !ok {
				noTime++
			}
			if inc.Address == "" {
				noAddress++
			}
		}

		total := len(r.incidents)
		fmt.Printf("%s coverage: type %d/%d, timestamp %d/%d, address %d/%d\n",
			r.tag, total-noType, total, total-noTime, total, total-noAddress, total)

		// A feed where no record yields a type or timestamp means the
		// normalizer's candidate field lists miss that layer's schema.
		if noType == total {
			p.errorf("%s: no record produced an incident type", r.tag)
		}
		if noTime == total {
			p.errorf("%s: no record produced a parseable timestamp", r.tag)
		}
	}
	return p
}
