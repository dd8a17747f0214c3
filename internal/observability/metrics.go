package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for pipeline runs.
type Metrics struct {
	RecordsFetched   prometheus.Counter
	RecordsMatched   prometheus.Counter
	RecordsNew       prometheus.Counter
	RecordsPublished prometheus.Counter
	HistorySize      prometheus.Gauge
	PublishEnabled   prometheus.Gauge

	Runs          *prometheus.CounterVec // labels: outcome={success,error}
	LastSuccess   prometheus.Gauge
	FetchDuration prometheus.Histogram
	RunDuration   prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aftershocks",
			Name:      "records_fetched_total",
			Help:      "Total rows parsed from the source listing.",
		}),
		RecordsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aftershocks",
			Name:      "records_matched_total",
			Help:      "Total fetched rows that matched the region filter.",
		}),
		RecordsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aftershocks",
			Name:      "records_new_total",
			Help:      "Total rows added to the history that were not seen before.",
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aftershocks",
			Name:      "records_published_total",
			Help:      "Total new rows published to the sink topic.",
		}),
		HistorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aftershocks",
			Name:      "history_records",
			Help:      "Number of records in the persisted history after the last run.",
		}),
		PublishEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aftershocks",
			Name:      "publish_enabled",
			Help:      "1 when new records are published to Kafka, 0 otherwise.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aftershocks",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aftershocks",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aftershocks",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of the source listing request.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aftershocks",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-merge-persist-render run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	prometheus.MustRegister(
		m.RecordsFetched,
		m.RecordsMatched,
		m.RecordsNew,
		m.RecordsPublished,
		m.HistorySize,
		m.PublishEnabled,
		m.Runs,
		m.LastSuccess,
		m.FetchDuration,
		m.RunDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RecordsFetched:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aftershocks", Name: "records_fetched_total"}),
		RecordsMatched:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aftershocks", Name: "records_matched_total"}),
		RecordsNew:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aftershocks", Name: "records_new_total"}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aftershocks", Name: "records_published_total"}),
		HistorySize:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "aftershocks", Name: "history_records"}),
		PublishEnabled:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "aftershocks", Name: "publish_enabled"}),
		Runs:             prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aftershocks", Name: "runs_total"}, []string{"outcome"}),
		LastSuccess:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "aftershocks", Name: "last_success_timestamp_seconds"}),
		FetchDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "aftershocks", Name: "fetch_duration_seconds"}),
		RunDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "aftershocks", Name: "run_duration_seconds"}),
	}
}

// WriteTextfile dumps the default registry in the text exposition format for
// the node exporter textfile collector. The write is atomic.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
