package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "traffic_eagle"

// Metrics holds the Prometheus collectors for loading, analysis, and the HTTP edge.
type Metrics struct {
	// Source tables.
	RecordsLoaded  *prometheus.CounterVec // labels: table={accidents,population}
	RecordsSkipped *prometheus.CounterVec // labels: table={accidents,population}
	TablesReady    prometheus.Gauge

	// Pipeline.
	Operations           *prometheus.CounterVec   // labels: op={rates,series,decompose,forecast}, outcome={ok,notice,error}
	OperationDuration    *prometheus.HistogramVec // labels: op
	AnalysisCache        *prometheus.CounterVec   // labels: op={rates,analysis}, result={hit,miss}
	ZeroPopulationStates prometheus.Counter

	// HTTP.
	HTTPRequests *prometheus.CounterVec   // labels: route, method, status
	HTTPDuration *prometheus.HistogramVec // labels: route
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsLoaded,
		m.RecordsSkipped,
		m.TablesReady,
		m.Operations,
		m.OperationDuration,
		m.AnalysisCache,
		m.ZeroPopulationStates,
		m.HTTPRequests,
		m.HTTPDuration,
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
		RecordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Source records loaded into the in-memory tables.",
		}, []string{"table"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Source rows or messages that failed to parse.",
		}, []string{"table"}),
		TablesReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tables_ready",
			Help:      "1 once the source tables are loaded, 0 before.",
		}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Pipeline operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of pipeline operations.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}, []string{"op"}),
		AnalysisCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_total",
			Help:      "Result cache lookups by operation and result.",
		}, []string{"op", "result"}),
		ZeroPopulationStates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zero_population_states_total",
			Help:      "Joined states omitted from rates because their population is zero.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method, and status code.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
