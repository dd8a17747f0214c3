package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/juseg/aftershocks/internal/chart"
	"github.com/juseg/aftershocks/internal/domain"
	"github.com/juseg/aftershocks/internal/observability"
)

// Fetcher reads the current listing and keeps rows matching the region filter.
type Fetcher interface {
	FetchCurrent(ctx context.Context, filter string) ([]domain.EarthquakeRecord, error)
}

// HistoryStore loads and atomically replaces the persisted history.
type HistoryStore interface {
	Load(ctx context.Context) (domain.History, error)
	Save(ctx context.Context, h domain.History) error
}

// Publisher forwards records seen for the first time to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, records []domain.EarthquakeRecord) error
}

// Options are the per-region settings of a pipeline.
type Options struct {
	Region      string
	BucketWidth time.Duration
	DisplayTZ   *time.Location
	ChartPath   string          // empty disables writing the chart to disk
	Clock       clockwork.Clock // nil means the real clock
}

// Result summarizes one completed run.
type Result struct {
	Fetched     int
	New         int
	Total       int
	Counts      domain.CountSeries
	Magnitudes  domain.MagnitudeSeries
	Annotations domain.Annotations
	ChartPath   string
}

// Pipeline runs fetch, merge, persist and render for a single region.
type Pipeline struct {
	fetcher   Fetcher
	store     HistoryStore
	publisher Publisher
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool

	mu         sync.RWMutex
	lastChart  []byte
	renderedAt time.Time
}

// New creates a Pipeline. A nil publisher disables publishing.
func New(f Fetcher, s HistoryStore, pub Publisher, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.DisplayTZ == nil {
		opts.DisplayTZ = time.UTC
	}
	return &Pipeline{
		fetcher:   f,
		store:     s,
		publisher: pub,
		opts:      opts,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LatestChart returns the SVG produced by the last successful run.
func (p *Pipeline) LatestChart() ([]byte, time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastChart, p.renderedAt, p.lastChart != nil
}

// Run executes one full pass. The history on disk is only replaced after the
// new records have been published, so a failed publish is retried next run.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.clock.Now()
	res, err := p.run(ctx)
	p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())
	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		return res, err
	}

	p.metrics.Runs.WithLabelValues("success").Inc()
	p.metrics.LastSuccess.Set(float64(p.clock.Now().Unix()))
	p.ready.Store(true)

	p.logger.Info("run complete",
		"region", p.opts.Region,
		"fetched", res.Fetched,
		"new", res.New,
		"total", res.Total,
		"buckets", len(res.Counts),
		"chart", res.ChartPath,
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context) (Result, error) {
	incoming, err := p.fetcher.FetchCurrent(ctx, p.opts.Region)
	if err != nil {
		return Result{}, fmt.Errorf("fetch listing: %w", err)
	}

	existing, err := p.store.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load history: %w", err)
	}

	merged := domain.Merge(existing, incoming)
	fresh := domain.NewRecords(existing, merged)
	p.logger.Debug("history merged",
		"region", p.opts.Region,
		"existing", len(existing),
		"incoming", len(incoming),
		"new", len(fresh),
	)

	if err := p.publish(ctx, fresh); err != nil {
		return Result{}, err
	}

	if err := p.store.Save(ctx, merged); err != nil {
		return Result{}, fmt.Errorf("save history: %w", err)
	}
	p.metrics.RecordsNew.Add(float64(len(fresh)))
	p.metrics.HistorySize.Set(float64(len(merged)))

	s, err := deriveSeries(merged, p.opts.BucketWidth, p.opts.DisplayTZ)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Fetched:     len(incoming),
		New:         len(fresh),
		Total:       len(merged),
		Counts:      s.Counts,
		Magnitudes:  s.Magnitudes,
		Annotations: s.Annotations,
	}

	if err := p.render(s); err != nil {
		return res, err
	}
	res.ChartPath = p.opts.ChartPath
	return res, nil
}

func (p *Pipeline) publish(ctx context.Context, fresh []domain.EarthquakeRecord) error {
	if p.publisher == nil || len(fresh) == 0 {
		return nil
	}
	if err := p.publisher.Publish(ctx, fresh); err != nil {
		return fmt.Errorf("publish new records: %w", err)
	}
	p.metrics.RecordsPublished.Add(float64(len(fresh)))
	return nil
}

func (p *Pipeline) render(s series) error {
	var buf bytes.Buffer
	err := chart.Render(&buf, chart.Chart{
		Title:       chartTitle(p.opts.Region),
		Counts:      s.Counts,
		Magnitudes:  s.Magnitudes,
		Annotations: s.Annotations,
		BucketWidth: p.opts.BucketWidth,
		Location:    p.opts.DisplayTZ,
	})
	if err != nil {
		return err
	}

	if p.opts.ChartPath != "" {
		if err := writeFileAtomic(p.opts.ChartPath, buf.Bytes()); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
	}

	p.mu.Lock()
	p.lastChart = buf.Bytes()
	p.renderedAt = s.Annotations.UpdatedAt
	p.mu.Unlock()
	return nil
}

func chartTitle(region string) string {
	if region == "" {
		return "Earthquakes, all regions"
	}
	return region + " aftershocks"
}

// writeFileAtomic replaces path with data via a temporary sibling file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
