package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the username ingestion worker

var (
	// Outbound HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yesman_http_requests_total",
			Help: "Total number of outbound HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yesman_http_request_duration_seconds",
			Help:    "Duration of outbound HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Resolution metrics
	UsernameResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yesman_username_resolutions_total",
			Help: "Total number of username resolution attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Database metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yesman_db_queries_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "table", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yesman_db_query_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	HistoryRowsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yesman_history_rows_inserted_total",
			Help: "Total number of username history rows inserted",
		},
	)

	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yesman_runs_total",
			Help: "Total number of ingestion runs",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yesman_run_duration_seconds",
			Help:    "Duration of ingestion runs in seconds",
			Buckets: []float64{10, 60, 300, 600, 1200, 1800, 3600, 7200},
		},
	)

	RecordsResolved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yesman_records_resolved",
			Help: "Number of records resolved by the last run",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yesman_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yesman_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)

	LastSuccessfulRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yesman_last_successful_run_timestamp",
			Help: "Timestamp of last successful ingestion run",
		},
	)
)

// RecordHTTPRequest records an outbound HTTP request
func RecordHTTPRequest(endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordResolution records the outcome of one username lookup
func RecordResolution(outcome string) {
	UsernameResolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordDBQuery records a database operation
func RecordDBQuery(operation, table, status string, duration float64) {
	DBQueriesTotal.WithLabelValues(operation, table, status).Inc()
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordRowsInserted adds to the inserted history rows counter
func RecordRowsInserted(n int64) {
	HistoryRowsInserted.Add(float64(n))
}

// RecordRun records an ingestion run
func RecordRun(status string, records int, duration float64) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(duration)
	RecordsResolved.Set(float64(records))

	if status == "success" {
		LastSuccessfulRun.SetToCurrentTime()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
