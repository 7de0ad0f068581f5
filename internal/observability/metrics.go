package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pwhl_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge

	// Stage metrics.
	StageRuns     *prometheus.CounterVec   // labels: stage, outcome={success,missing_input,schema,duplicate_key,error}
	StageDuration *prometheus.HistogramVec // labels: stage
	RowsWritten   *prometheus.CounterVec   // labels: table
	Warnings      *prometheus.CounterVec   // labels: kind

	// Load metrics.
	FactRowsPublished prometheus.Counter

	// Weather API metrics.
	WeatherAPIRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	WeatherAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.PipelineRunning,
		m.StageRuns,
		m.StageDuration,
		m.RowsWritten,
		m.Warnings,
		m.FactRowsPublished,
		m.WeatherAPIRequests,
		m.WeatherAPIDuration,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		StageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage executions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of one stage execution.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written per output table.",
		}, []string{"table"}),
		Warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Non-fatal data quality warnings by kind.",
		}, []string{"kind"}),
		FactRowsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fact_rows_published_total",
			Help:      "Fact rows written to the Kafka fact topic.",
		}),
		WeatherAPIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_api_requests_total",
			Help:      "Weather archive API requests by outcome.",
		}, []string{"outcome"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Weather archive API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}
