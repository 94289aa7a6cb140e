// Command genmock writes the synthetic incident fixture used by the frontend
// test suite. It runs the actual domain synthesizer under a fixed clock so
// the fixture stays byte-stable across regenerations.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/incidents.json -lat 43.6532 -lng -79.3832
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/crime-incident-service/internal/domain"
)

var fixtureTime = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the incident fixture")
	lat := flag.Float64("lat", 43.6532, "center latitude")
	lng := flag.Float64("lng", -79.3832, "center longitude")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	// Fixed clock for reproducible timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(fixtureTime))
	defer domain.SetClock(nil)

	incidents := domain.SyntheticIncidents(*lat, *lng)
	if err := writeJSON(*out, incidents); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d incidents: %s", len(incidents), *out)
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
