// Package iometrics holds the Prometheus instrumentation of the sync core.
package iometrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// synchronization pipeline.
type Metrics struct {
	SyncRuns    *prometheus.CounterVec // labels: mode, status
	SyncRunning prometheus.Gauge
	RunDuration *prometheus.HistogramVec // labels: mode

	UnitsProcessed  *prometheus.CounterVec // labels: outcome={succeeded,failed}
	RecordsInserted prometheus.Counter
	RowsSkipped     prometheus.Counter
	FilesDownloaded prometheus.Counter

	FetchDuration  prometheus.Histogram
	UpsertDuration prometheus.Histogram
	BatchRows      prometheus.Histogram
}

func build() *Metrics {
	return &Metrics{
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aqsync",
			Name:      "runs_total",
			Help:      "Finished sync runs by mode and terminal status.",
		}, []string{"mode", "status"}),
		SyncRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aqsync",
			Name:      "runs_running",
			Help:      "Number of sync runs currently in flight.",
		}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aqsync",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a whole sync run.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
		}, []string{"mode"}),
		UnitsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aqsync",
			Name:      "units_processed_total",
			Help:      "Work units by outcome.",
		}, []string{"outcome"}),
		RecordsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqsync",
			Name:      "records_inserted_total",
			Help:      "Measurement rows written to the store.",
		}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqsync",
			Name:      "rows_skipped_total",
			Help:      "Source rows dropped for malformed identifiers or fields.",
		}),
		FilesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqsync",
			Name:      "files_downloaded_total",
			Help:      "Source files fetched from the distribution service.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aqsync",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one file download.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		UpsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aqsync",
			Name:      "upsert_duration_seconds",
			Help:      "Duration of writing one record set to the store.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BatchRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aqsync",
			Name:      "batch_rows",
			Help:      "Measurement rows per normalized payload.",
			Buckets:   []float64{10, 100, 1000, 5000, 10000, 50000, 100000},
		}),
	}
}

// New creates and registers all sync metrics with the default Prometheus
// registry.
func New() *Metrics {
	m := build()
	prometheus.MustRegister(
		m.SyncRuns,
		m.SyncRunning,
		m.RunDuration,
		m.UnitsProcessed,
		m.RecordsInserted,
		m.RowsSkipped,
		m.FilesDownloaded,
		m.FetchDuration,
		m.UpsertDuration,
		m.BatchRows,
	)
	return m
}

// NewForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewForTesting() *Metrics {
	return build()
}
