// Package domain models the earthquake listing published by the Japan
// Meteorological Agency (JMA) and the series derived from it.
//
// # Data Source
//
// The JMA "Hypocenter list" page (https://www.jma.go.jp/en/quake/) publishes the
// latest few dozen located earthquakes as an HTML table. The table holds a
// fixed-size recent window, so consecutive fetches overlap partially and older
// rows drop off as new events arrive. Each run unions the fetched window with
// the persisted history, which therefore grows monotonically. See [Merge].
//
// # JMA Data Conventions
//
// Time format:
//
//	"03:07 JST 6 Sep 2018" on the English page, wall clock in Japan Standard
//	Time. The zone abbreviation is not trusted; wall-clock values are read in
//	the configured source timezone. See [Reinterpret].
//
// Magnitude encoding:
//
//	A single-character prefix followed by a decimal: "M5.2", "M-0.3".
//	Exactly one character is stripped before parsing, so negative magnitudes
//	keep their sign. See [ParseMagnitude].
//
// Region names:
//
//	Romanized JMA region labels such as "Iburi-chiho Chutobu". Filtering is a
//	case-insensitive substring match; an empty filter keeps every row.
//
// # Series
//
// Counts are grouped into fixed-width, half-open buckets aligned to local
// midnight (display timezone) of the earliest record's day. Only buckets that
// hold at least one record are materialized. Timestamps are always converted to
// the display timezone before bucketing. See [Bucketize] and [AdjustTimezone].
package domain
