package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// EarthquakeRecord is one observed event as listed by the source.
// Text fields are kept exactly as received; Magnitude is parsed on demand.
type EarthquakeRecord struct {
	Time      time.Time `json:"time"`
	Region    string    `json:"region_name"`
	Magnitude string    `json:"magnitude"`
	Latitude  string    `json:"latitude,omitempty"`
	Longitude string    `json:"longitude,omitempty"`
	Depth     string    `json:"depth,omitempty"`
}

// recordKey is the comparable identity of a record. Two records are duplicates
// when every persisted field is equal, with time compared as an instant.
type recordKey struct {
	unixNano  int64
	region    string
	magnitude string
	latitude  string
	longitude string
	depth     string
}

func (r EarthquakeRecord) key() recordKey {
	return recordKey{
		unixNano:  r.Time.UnixNano(),
		region:    r.Region,
		magnitude: r.Magnitude,
		latitude:  r.Latitude,
		longitude: r.Longitude,
		depth:     r.Depth,
	}
}

// Equal reports whether two records are exact duplicates.
func (r EarthquakeRecord) Equal(o EarthquakeRecord) bool {
	return r.key() == o.key()
}

// RecordID produces a deterministic ID from every persisted field, so the same
// row seen in two overlapping fetches always maps to the same ID.
func RecordID(r EarthquakeRecord) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		r.Time.UTC().Format(time.RFC3339Nano), r.Region, r.Magnitude, r.Latitude, r.Longitude, r.Depth)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:8])
}

// History is the full deduplicated record set for a region, sorted by time ascending.
type History []EarthquakeRecord

// Bucket is a half-open time window [Start, Start+width) and the number of
// records that fall inside it.
type Bucket struct {
	Start time.Time
	Count int
}

// CountSeries lists non-empty buckets in ascending order.
type CountSeries []Bucket

// Total returns the number of records counted across all buckets.
func (s CountSeries) Total() int {
	n := 0
	for _, b := range s {
		n += b.Count
	}
	return n
}

// MagnitudePoint pairs a record's exact timestamp with its parsed magnitude.
type MagnitudePoint struct {
	Time      time.Time
	Magnitude float64
}

// MagnitudeSeries holds one point per record in input order.
type MagnitudeSeries []MagnitudePoint

// Annotations are the time-aware labels drawn on the chart.
type Annotations struct {
	MainShock *MagnitudePoint // largest magnitude; nil when there are no points
	Latest    *MagnitudePoint // most recent point; nil when there are no points
	UpdatedAt time.Time
}
