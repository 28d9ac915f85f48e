package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_report"

// Metrics holds the Prometheus counters, histograms, and gauges for a report run.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge

	StageDuration *prometheus.HistogramVec // labels: stage={extract,transform,report,publish}

	// Indicator provider metrics.
	FetchBatches     *prometheus.CounterVec   // labels: outcome={success,error}
	ProviderRequests *prometheus.CounterVec   // labels: endpoint={indicators,country,series}, outcome={success,error,retry}
	ProviderDuration *prometheus.HistogramVec // labels: endpoint

	// Table metrics.
	IndicatorRows  *prometheus.GaugeVec   // labels: stage={extracted,transformed}
	RowsDropped    *prometheus.CounterVec // labels: reason={sparse,all_zero}
	DisasterEvents *prometheus.GaugeVec   // labels: stage={extracted,transformed}

	ReportPages *prometheus.CounterVec // labels: outcome={rendered,skipped,failed}

	registry *prometheus.Registry
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a report run is active, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful report run.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		FetchBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_batches_total",
			Help:      "Indicator fetch batches by outcome.",
		}, []string{"outcome"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "World Bank API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "World Bank API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		IndicatorRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indicator_rows",
			Help:      "Indicator rows per stage of the last run.",
		}, []string{"stage"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indicator_rows_dropped_total",
			Help:      "Indicator rows removed by the transformer, by reason.",
		}, []string{"reason"}),
		DisasterEvents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disaster_events",
			Help:      "Disaster events per stage of the last run.",
		}, []string{"stage"}),
		ReportPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_pages_total",
			Help:      "Report pages by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.LastSuccess,
		m.StageDuration,
		m.FetchBatches,
		m.ProviderRequests,
		m.ProviderDuration,
		m.IndicatorRows,
		m.RowsDropped,
		m.DisasterEvents,
		m.ReportPages,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(m.collectors()...)
	return m
}

// Gatherer returns the registry the metrics were registered with.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultGatherer
}

// WriteTextfile dumps the current metric values in the node_exporter
// textfile format, for scraping after a batch run has exited.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Gatherer())
}
