// Package domain models crime incident data aggregated from municipal open
// data feeds.
//
// # Data Sources
//
// Incident records come from ArcGIS FeatureServer endpoints published by
// municipal police services, primarily the Toronto Police Service Major Crime
// Indicators (MCI) layer. FeatureServer responses carry an untyped attribute
// bag per feature; field names are not standardized across municipalities, so
// normalization resolves each canonical field from a ranked list of candidate
// keys. Date-typed attributes are epoch milliseconds by ArcGIS convention.
//
// # Toronto MCI Conventions
//
// The MCI layer splits occurrence time across two columns: OCC_DATE holds the
// calendar date as epoch milliseconds (midnight UTC) and OCC_HOUR holds the
// hour of day as an integer (sometimes serialized as a string). REPORT_DATE
// and REPORT_HOUR carry the same split for the report time. Coordinates are
// flat numeric columns LAT_WGS84 / LONG_WGS84 rather than feature geometry.
//
// # Geocoding
//
// Postal codes are resolved through Nominatim. Canadian postal codes geocode
// unreliably: full codes often return nothing, so resolution walks a chain of
// fallback queries ending with the FSA (the first three characters, which
// identify a coarse forward sortation area). The Nominatim usage policy
// requires an identifying User-Agent and forbids serving stale cached
// responses, which is why every outbound request carries the configured
// client label and a no-cache directive.
package domain
