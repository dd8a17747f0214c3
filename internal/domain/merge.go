package domain

import (
	"cmp"
	"slices"
	"strings"
)

// FilterRegion keeps records whose region label contains filter as a
// case-insensitive substring. An empty filter keeps every record.
func FilterRegion(records []EarthquakeRecord, filter string) []EarthquakeRecord {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return slices.Clone(records)
	}

	out := make([]EarthquakeRecord, 0, len(records))
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Region), filter) {
			out = append(out, r)
		}
	}
	return out
}

// Merge returns the union of existing and incoming with exact duplicates
// removed, sorted by time ascending. Neither input is modified.
func Merge(existing History, incoming []EarthquakeRecord) History {
	seen := make(map[recordKey]struct{}, len(existing)+len(incoming))
	merged := make(History, 0, len(existing)+len(incoming))

	add := func(r EarthquakeRecord) {
		k := r.key()
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		merged = append(merged, r)
	}
	for _, r := range existing {
		add(r)
	}
	for _, r := range incoming {
		add(r)
	}

	slices.SortStableFunc(merged, compareRecords)
	return merged
}

// NewRecords returns the records of merged that are absent from existing,
// in merged order.
func NewRecords(existing, merged History) []EarthquakeRecord {
	seen := make(map[recordKey]struct{}, len(existing))
	for _, r := range existing {
		seen[r.key()] = struct{}{}
	}

	var out []EarthquakeRecord
	for _, r := range merged {
		if _, ok := seen[r.key()]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// compareRecords orders by time, then by the text fields so that rows sharing
// a timestamp always sort the same way.
func compareRecords(a, b EarthquakeRecord) int {
	return cmp.Or(
		a.Time.Compare(b.Time),
		cmp.Compare(a.Region, b.Region),
		cmp.Compare(a.Magnitude, b.Magnitude),
		cmp.Compare(a.Latitude, b.Latitude),
		cmp.Compare(a.Longitude, b.Longitude),
		cmp.Compare(a.Depth, b.Depth),
	)
}
