package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	errEmptyMagnitude     = errors.New("empty value")
	errNonFiniteMagnitude = errors.New("not a finite number")
	errMagnitudeRange     = errors.New("outside the magnitude scale")
)

// maxMagnitude bounds the absolute value accepted by ParseMagnitude.
const maxMagnitude = 10

// ParseMagnitude strips the single-character prefix of a raw magnitude field
// (e.g. "M5.2" -> 5.2, "M-1.0" -> -1.0) and parses the remainder. Values
// beyond ±10 are rejected.
func ParseMagnitude(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &ParseError{Input: raw, Err: errEmptyMagnitude}
	}
	_, size := utf8.DecodeRuneInString(s)
	rest := s[size:]
	if rest == "" {
		return 0, &ParseError{Input: raw, Err: errEmptyMagnitude}
	}

	v, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, &ParseError{Input: raw, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{Input: raw, Err: errNonFiniteMagnitude}
	}
	if math.Abs(v) > maxMagnitude {
		return 0, &ParseError{Input: raw, Err: errMagnitudeRange}
	}
	return v, nil
}

// Reinterpret reads the wall-clock fields of t as a time in loc, discarding
// whatever zone t carried. Used for timestamps published without a usable zone.
func Reinterpret(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// AdjustTimezone converts every record timestamp to loc. The instant is
// unchanged; only the zone used for calendar fields differs.
func AdjustTimezone(records []EarthquakeRecord, loc *time.Location) []EarthquakeRecord {
	out := make([]EarthquakeRecord, len(records))
	for i, r := range records {
		r.Time = r.Time.In(loc)
		out[i] = r
	}
	return out
}

// Bucketize counts records per fixed-width, half-open window. Windows are
// aligned to midnight in loc of the earliest record's day and only windows
// holding at least one record are returned, in ascending order.
//
// Windows advance by absolute duration from that one midnight, so after a
// daylight saving transition in loc later boundaries sit off the wall-clock
// grid by the offset change.
func Bucketize(records []EarthquakeRecord, width time.Duration, loc *time.Location) (CountSeries, error) {
	if width <= 0 {
		return nil, fmt.Errorf("bucket width must be positive, got %s", width)
	}
	if len(records) == 0 {
		return CountSeries{}, nil
	}

	earliest := records[0].Time
	for _, r := range records[1:] {
		if r.Time.Before(earliest) {
			earliest = r.Time
		}
	}
	origin := startOfDay(earliest, loc)

	counts := make(map[int64]int)
	for _, r := range records {
		idx := int64(r.Time.Sub(origin) / width)
		counts[idx]++
	}

	indexes := make([]int64, 0, len(counts))
	for idx := range counts {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)

	series := make(CountSeries, 0, len(indexes))
	for _, idx := range indexes {
		series = append(series, Bucket{
			Start: origin.Add(time.Duration(idx) * width).In(loc),
			Count: counts[idx],
		})
	}
	return series, nil
}

// ExtractMagnitudes parses each record's magnitude, pairing it with the exact
// timestamp and keeping input order. The first malformed field aborts with a *ParseError.
func ExtractMagnitudes(records []EarthquakeRecord) (MagnitudeSeries, error) {
	series := make(MagnitudeSeries, 0, len(records))
	for _, r := range records {
		mag, err := ParseMagnitude(r.Magnitude)
		if err != nil {
			return nil, err
		}
		series = append(series, MagnitudePoint{Time: r.Time, Magnitude: mag})
	}
	return series, nil
}

// Annotate picks the main shock (largest magnitude, earliest on ties) and the
// latest point, and stamps the current time in loc.
func Annotate(series MagnitudeSeries, loc *time.Location) Annotations {
	a := Annotations{UpdatedAt: clock.Now().In(loc)}
	for i := range series {
		p := series[i]
		if a.MainShock == nil || p.Magnitude > a.MainShock.Magnitude {
			a.MainShock = &p
		}
		if a.Latest == nil || !p.Time.Before(a.Latest.Time) {
			a.Latest = &p
		}
	}
	return a
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
