// Package chart draws the aftershock chart as a standalone SVG document:
// counts per time bucket as bars on the left axis, individual magnitudes as
// points on the right axis.
package chart

import (
	"fmt"
	"io"
	"math"
	"text/template"
	"time"

	"github.com/juseg/aftershocks/internal/domain"
)

// Canvas geometry in SVG user units.
const (
	width        = 800
	height       = 400
	marginLeft   = 60
	marginRight  = 60
	marginTop    = 40
	marginBottom = 50
	pointRadius  = 3
	maxMagTicks  = 10
)

// Chart is everything needed to draw one figure.
type Chart struct {
	Title       string
	Counts      domain.CountSeries
	Magnitudes  domain.MagnitudeSeries
	Annotations domain.Annotations
	BucketWidth time.Duration
	Location    *time.Location
}

type bar struct {
	X, Y, W, H float64
	Count      int
	Start      string
}

type point struct {
	X, Y      float64
	Magnitude float64
	Time      string
}

type tick struct {
	Pos   float64
	Label string
}

type label struct {
	X, Y float64
	Text string
}

type view struct {
	Width, Height int
	Left, Right   float64
	Top, Bottom   float64
	Title         string
	CountLabel    string
	Bars          []bar
	Points        []point
	TimeTicks     []tick
	CountTicks    []tick
	MagTicks      []tick
	MainShock     *label
	Updated       *label
	PointRadius   float64
}

// Render writes the chart as SVG to w.
func Render(w io.Writer, c Chart) error {
	if c.BucketWidth <= 0 {
		return fmt.Errorf("render chart: bucket width must be positive, got %s", c.BucketWidth)
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	if err := svgTemplate.Execute(w, layout(c, loc)); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

func layout(c Chart, loc *time.Location) view {
	v := view{
		Width:       width,
		Height:      height,
		Left:        marginLeft,
		Right:       width - marginRight,
		Top:         marginTop,
		Bottom:      height - marginBottom,
		Title:       c.Title,
		CountLabel:  "Earthquakes per " + formatWidth(c.BucketWidth),
		PointRadius: pointRadius,
	}

	t0, t1, ok := timeRange(c)
	if !ok {
		return v
	}
	span := t1.Sub(t0).Seconds()
	xOf := func(t time.Time) float64 {
		return v.Left + (v.Right-v.Left)*t.Sub(t0).Seconds()/span
	}

	maxCount := 1
	for _, b := range c.Counts {
		maxCount = max(maxCount, b.Count)
	}
	countTop := niceCeil(float64(maxCount))
	yCount := func(n float64) float64 {
		return v.Bottom - (v.Bottom-v.Top)*n/countTop
	}

	magLow, magHigh := magnitudeRange(c.Magnitudes)
	yMag := func(m float64) float64 {
		return v.Bottom - (v.Bottom-v.Top)*(m-magLow)/(magHigh-magLow)
	}

	for _, b := range c.Counts {
		x0, x1 := xOf(b.Start), xOf(b.Start.Add(c.BucketWidth))
		y := yCount(float64(b.Count))
		v.Bars = append(v.Bars, bar{
			X: x0, Y: y, W: x1 - x0, H: v.Bottom - y,
			Count: b.Count,
			Start: b.Start.In(loc).Format("2006-01-02 15:04"),
		})
	}
	for _, p := range c.Magnitudes {
		v.Points = append(v.Points, point{
			X: xOf(p.Time), Y: yMag(p.Magnitude),
			Magnitude: p.Magnitude,
			Time:      p.Time.In(loc).Format("2006-01-02 15:04"),
		})
	}

	for day := startOfDay(t0, loc); !day.After(t1); day = day.AddDate(0, 0, 1) {
		if day.Before(t0) {
			continue
		}
		v.TimeTicks = append(v.TimeTicks, tick{Pos: xOf(day), Label: day.Format("Jan 02")})
	}
	if len(v.TimeTicks) == 0 {
		v.TimeTicks = []tick{{Pos: v.Left, Label: t0.In(loc).Format("Jan 02 15:04")}}
	}
	for _, n := range []float64{0, countTop / 2, countTop} {
		v.CountTicks = append(v.CountTicks, tick{Pos: yCount(n), Label: fmt.Sprintf("%g", n)})
	}
	for _, m := range magnitudeTicks(magLow, magHigh) {
		v.MagTicks = append(v.MagTicks, tick{Pos: yMag(m), Label: fmt.Sprintf("%g", m)})
	}

	if ms := c.Annotations.MainShock; ms != nil {
		v.MainShock = &label{
			X:    xOf(ms.Time) + 2*pointRadius,
			Y:    yMag(ms.Magnitude) - 2*pointRadius,
			Text: fmt.Sprintf("M%.1f", ms.Magnitude),
		}
	}
	if u := c.Annotations.UpdatedAt; !u.IsZero() {
		x := math.Min(math.Max(xOf(u), v.Left), v.Right)
		v.Updated = &label{X: x, Y: v.Top, Text: "updated " + u.In(loc).Format("15:04")}
	}
	return v
}

// timeRange spans every bucket and point. It reports false when there is
// nothing to draw.
func timeRange(c Chart) (time.Time, time.Time, bool) {
	var t0, t1 time.Time
	extend := func(a, b time.Time) {
		if t0.IsZero() || a.Before(t0) {
			t0 = a
		}
		if t1.IsZero() || b.After(t1) {
			t1 = b
		}
	}
	for _, b := range c.Counts {
		extend(b.Start, b.Start.Add(c.BucketWidth))
	}
	for _, p := range c.Magnitudes {
		extend(p.Time, p.Time)
	}
	if t0.IsZero() {
		return t0, t1, false
	}
	if !t1.After(t0) {
		t1 = t0.Add(c.BucketWidth)
	}
	return t0, t1, true
}

// magnitudeRange returns whole-number bounds enclosing every magnitude and 0.
func magnitudeRange(s domain.MagnitudeSeries) (float64, float64) {
	low, high := 0.0, 1.0
	for _, p := range s {
		low = math.Min(low, math.Floor(p.Magnitude))
		high = math.Max(high, math.Ceil(p.Magnitude))
	}
	if high == low {
		high = low + 1
	}
	return low, high
}

// magnitudeTicks spaces at most maxMagTicks+1 labels from low to high in
// whole-number steps.
func magnitudeTicks(low, high float64) []float64 {
	step := math.Max(1, niceCeil((high-low)/maxMagTicks))
	if math.IsInf(step, 0) || math.IsNaN(step) {
		return []float64{low, high}
	}
	n := min(int(math.Floor((high-low)/step)), maxMagTicks)
	ticks := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		ticks = append(ticks, low+float64(i)*step)
	}
	return ticks
}

// niceCeil rounds n up to 1, 2 or 5 times a power of ten.
func niceCeil(n float64) float64 {
	exp := math.Pow(10, math.Floor(math.Log10(n)))
	for _, f := range []float64{1, 2, 5, 10} {
		if f*exp >= n {
			return f * exp
		}
	}
	return 10 * exp
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func formatWidth(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

var funcs = template.FuncMap{
	"half": func(x float64) float64 { return x / 2 },
	"plus": func(x, y float64) float64 { return x + y },
}

var svgTemplate = template.Must(template.New("chart").Funcs(funcs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}" viewBox="0 0 {{.Width}} {{.Height}}" font-family="sans-serif" font-size="12">
<title>{{html .Title}}</title>
<rect width="100%" height="100%" fill="white"/>
<text class="title" x="{{.Left}}" y="{{printf "%.1f" (half .Top)}}" font-size="16">{{html .Title}}</text>
<g class="bars" fill="#9ecae1">
{{- range .Bars}}
<rect class="bar" x="{{printf "%.2f" .X}}" y="{{printf "%.2f" .Y}}" width="{{printf "%.2f" .W}}" height="{{printf "%.2f" .H}}"><title>{{.Start}}: {{.Count}}</title></rect>
{{- end}}
</g>
<g class="magnitudes" fill="#d62728">
{{- range .Points}}
<circle class="mag" cx="{{printf "%.2f" .X}}" cy="{{printf "%.2f" .Y}}" r="{{$.PointRadius}}"><title>{{.Time}} M{{printf "%.1f" .Magnitude}}</title></circle>
{{- end}}
</g>
<g class="axes" stroke="black" fill="none">
<line x1="{{.Left}}" y1="{{.Bottom}}" x2="{{.Right}}" y2="{{.Bottom}}"/>
<line x1="{{.Left}}" y1="{{.Top}}" x2="{{.Left}}" y2="{{.Bottom}}"/>
<line x1="{{.Right}}" y1="{{.Top}}" x2="{{.Right}}" y2="{{.Bottom}}"/>
</g>
<g class="ticks">
{{- range .TimeTicks}}
<text x="{{printf "%.2f" .Pos}}" y="{{printf "%.1f" (plus $.Bottom 16)}}" text-anchor="middle">{{.Label}}</text>
{{- end}}
{{- range .CountTicks}}
<text x="{{printf "%.1f" (plus $.Left -6)}}" y="{{printf "%.2f" .Pos}}" text-anchor="end">{{.Label}}</text>
{{- end}}
{{- range .MagTicks}}
<text x="{{printf "%.1f" (plus $.Right 6)}}" y="{{printf "%.2f" .Pos}}">{{.Label}}</text>
{{- end}}
</g>
<text class="ylabel" transform="translate(16 {{printf "%.1f" (half (plus .Top .Bottom))}}) rotate(-90)" text-anchor="middle">{{.CountLabel}}</text>
<text class="ylabel" transform="translate({{printf "%.1f" (plus .Right 44)}} {{printf "%.1f" (half (plus .Top .Bottom))}}) rotate(90)" text-anchor="middle">Magnitude</text>
{{- with .MainShock}}
<text class="mainshock" x="{{printf "%.2f" .X}}" y="{{printf "%.2f" .Y}}" fill="#d62728">{{.Text}}</text>
{{- end}}
{{- with .Updated}}
<line class="updated" x1="{{printf "%.2f" .X}}" y1="{{$.Top}}" x2="{{printf "%.2f" .X}}" y2="{{$.Bottom}}" stroke="gray" stroke-dasharray="4 3"/>
<text class="updated" x="{{printf "%.2f" .X}}" y="{{printf "%.1f" (plus .Y -4)}}" text-anchor="end" fill="gray">{{.Text}}</text>
{{- end}}
</svg>
`))
