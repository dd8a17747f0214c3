package pipeline

import (
	"fmt"
	"time"

	"github.com/juseg/aftershocks/internal/domain"
)

// series is everything derived from the history for drawing.
type series struct {
	Counts      domain.CountSeries
	Magnitudes  domain.MagnitudeSeries
	Annotations domain.Annotations
}

// deriveSeries converts the history to the display timezone before bucketing,
// so bucket boundaries fall on display-local midnights.
func deriveSeries(h domain.History, width time.Duration, loc *time.Location) (series, error) {
	display := domain.AdjustTimezone(h, loc)

	counts, err := domain.Bucketize(display, width, loc)
	if err != nil {
		return series{}, fmt.Errorf("bucketize: %w", err)
	}

	mags, err := domain.ExtractMagnitudes(display)
	if err != nil {
		return series{}, fmt.Errorf("extract magnitudes: %w", err)
	}

	return series{
		Counts:      counts,
		Magnitudes:  mags,
		Annotations: domain.Annotate(mags, loc),
	}, nil
}
