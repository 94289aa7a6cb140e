package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Attributes is the untyped attribute bag of one feature-service record.
// Upstream schemas vary by municipality, so fields are resolved from ranked
// candidate key lists rather than per-source record types.
type Attributes map[string]any

// Geometry is a point geometry in WGS84: X is longitude, Y is latitude.
type Geometry struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ranked candidate keys per canonical field, first non-empty wins. The lists
// cover both crime schemas (Toronto MCI and similar) and municipal
// service-request schemas.
var (
	idFields = []string{
		"OBJECTID", "ObjectId", "objectid",
		"EVENT_UNIQUE_ID", "INCIDENT_NUMBER", "REQUEST_ID", "SERVICE_REQUEST_ID", "ID",
	}
	typeFields = []string{
		"OFFENCE", "MCI_CATEGORY", "CRIME_TYPE", "OCCURRENCE_CATEGORY", "CATEGORY",
		"SERVICE_REQUEST_TYPE", "REQUEST_TYPE", "TYPE",
	}
	addressFields = []string{
		"ADDRESS", "LOCATION", "STREET", "INTERSECTION",
		"NEIGHBOURHOOD_140", "NEIGHBOURHOOD_158", "PLACE_NAME",
	}
	dateFields = []string{
		"OCC_DATE", "OCCURRENCE_DATE", "REPORT_DATE", "REPORTED_DATE",
		"CREATED_DATE", "DATE_REPORTED", "EditDate", "EDITDATE",
	}
	latFields = []string{"LAT_WGS84", "LATITUDE", "LAT", "Y", "lat"}
	lngFields = []string{"LONG_WGS84", "LONGITUDE", "LONG", "LNG", "X", "lon", "lng"}
)

// dateLayouts are tried in order for string-typed date attributes.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// Normalize maps an arbitrary attribute bag plus optional geometry into a
// canonical Incident. Every bag yields a record: missing identifiers get a
// random token, a missing category defaults to "Incident", and an
// unresolvable timestamp defaults to the current time. Records without
// usable coordinates are kept here and dropped by spatial fetch callers.
func Normalize(attrs Attributes, geom *Geometry, source string) Incident {
	inc := Incident{
		ID:     resolveID(attrs),
		Type:   firstString(attrs, typeFields, "Incident"),
		Source: source,
	}

	inc.Address = firstString(attrs, addressFields, "")
	inc.Timestamp = isoTimestamp(resolveTime(attrs))

	if geom != nil && isFinite(geom.Y) && isFinite(geom.X) {
		inc.Lat, inc.Lng = coords(geom.Y, geom.X)
		return inc
	}
	if lat, ok := firstNumber(attrs, latFields); ok {
		if lng, ok := firstNumber(attrs, lngFields); ok {
			inc.Lat, inc.Lng = coords(lat, lng)
		}
	}
	return inc
}

// NormalizeMCI maps a Toronto Major Crime Indicators attribute bag. It
// differs from Normalize by composing the timestamp from split date and hour
// columns: OCC_DATE supplies the UTC calendar date, OCC_HOUR the hour of day.
// Occurrence-based composition outranks report-based composition, which
// outranks the plain date fields.
func NormalizeMCI(attrs Attributes) Incident {
	inc := Incident{
		ID:      resolveID(attrs),
		Type:    firstString(attrs, []string{"OFFENCE", "MCI_CATEGORY"}, "Incident"),
		Address: firstString(attrs, []string{"NEIGHBOURHOOD_140", "NEIGHBOURHOOD_158"}, ""),
		Source:  "toronto-mci",
	}

	ts, ok := composeDateHour(attrs, "OCC_DATE", "OCC_HOUR")
	if !ok {
		ts, ok = composeDateHour(attrs, "REPORT_DATE", "REPORT_HOUR")
	}
	if !ok {
		ts, ok = parseDateValue(attrs["OCC_DATE"])
	}
	if !ok {
		ts, ok = parseDateValue(attrs["REPORT_DATE"])
	}
	if !ok {
		ts = clock.Now()
	}
	inc.Timestamp = isoTimestamp(ts)

	if lat, ok := firstNumber(attrs, []string{"LAT_WGS84"}); ok {
		if lng, ok := firstNumber(attrs, []string{"LONG_WGS84"}); ok {
			inc.Lat, inc.Lng = coords(lat, lng)
		}
	}
	return inc
}

func resolveID(attrs Attributes) string {
	for _, key := range idFields {
		v, ok := attrs[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			return fmt.Sprintf("%.0f", val)
		case string:
			if strings.TrimSpace(val) != "" {
				return val
			}
		default:
			return fmt.Sprintf("%v", val)
		}
	}
	return uuid.NewString()
}

func resolveTime(attrs Attributes) time.Time {
	for _, key := range dateFields {
		if t, ok := parseDateValue(attrs[key]); ok {
			return t
		}
	}
	return clock.Now()
}

// parseDateValue accepts numeric epoch-milliseconds or a parseable date
// string. Numeric fields are always epoch millis per ArcGIS convention.
func parseDateValue(v any) (time.Time, bool) {
	switch val := v.(type) {
	case float64:
		if !isFinite(val) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(val)), true
	case int64:
		return time.UnixMilli(val), true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// composeDateHour builds a timestamp from a split date/hour column pair. The
// date must be numeric epoch millis; the hour parses as an integer and
// defaults to 0 when absent or malformed.
func composeDateHour(attrs Attributes, dateKey, hourKey string) (time.Time, bool) {
	epoch, ok := numberValue(attrs[dateKey])
	if !ok {
		return time.Time{}, false
	}
	hour := 0
	if h, ok := numberValue(attrs[hourKey]); ok && h >= 0 && h <= 23 {
		hour = int(h)
	}
	d := time.UnixMilli(int64(epoch)).UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC), true
}

func firstString(attrs Attributes, keys []string, fallback string) string {
	for _, key := range keys {
		v, ok := attrs[key]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if strings.TrimSpace(s) != "" {
				return s
			}
			continue
		}
		return fmt.Sprintf("%v", v)
	}
	return fallback
}

func firstNumber(attrs Attributes, keys []string) (float64, bool) {
	for _, key := range keys {
		if n, ok := numberValue(attrs[key]); ok {
			return n, true
		}
	}
	return 0, false
}

// numberValue coerces a JSON attribute to a finite float64, parsing numeric
// strings as needed.
func numberValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, isFinite(val)
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return n, isFinite(n)
	}
	return 0, false
}

func coords(lat, lng float64) (*float64, *float64) {
	if !isFinite(lat) || !isFinite(lng) {
		return nil, nil
	}
	return &lat, &lng
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isoTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
