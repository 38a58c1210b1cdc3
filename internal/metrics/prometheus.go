package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the chunk inspection service
type Metrics struct {
	// Chunk codec metrics
	ChunksParsed     prometheus.Counter
	ChunkParseErrors *prometheus.CounterVec
	ChunkSize        prometheus.Histogram

	// Scan metrics
	ScansTotal    prometheus.Counter
	ScanDuration  prometheus.Histogram
	ScanChunks    prometheus.Histogram
	ActiveReports prometheus.Gauge

	// Secret operation metrics
	SecretOperations *prometheus.CounterVec

	// Export metrics
	ReportsExported      prometheus.Counter
	ReportExportFailures prometheus.Counter

	// UDP ingest metrics
	DatagramsReceived  prometheus.Counter
	ValidationFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Chunk codec metrics
		ChunksParsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pngsecret_chunks_parsed_total",
			Help: "Total number of chunk frames successfully parsed",
		}),
		ChunkParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pngsecret_chunk_parse_errors_total",
			Help: "Total number of chunk frame parse failures",
		}, []string{"kind"}),
		ChunkSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pngsecret_chunk_size_bytes",
			Help:    "Data length of parsed chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(16, 4, 12), // 16B to ~256MB
		}),

		// Scan metrics
		ScansTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pngsecret_scans_total",
			Help: "Total number of stream scans performed",
		}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pngsecret_scan_duration_seconds",
			Help:    "Duration of stream scans",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		ScanChunks: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pngsecret_scan_chunks",
			Help:    "Number of chunks encountered per scan",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 to ~4096
		}),
		ActiveReports: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pngsecret_active_reports",
			Help: "Current number of retained scan reports",
		}),

		// Secret operation metrics
		SecretOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pngsecret_secret_operations_total",
			Help: "Total number of secret message operations",
		}, []string{"op"}),

		// Export metrics
		ReportsExported: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pngsecret_reports_exported_total",
			Help: "Total number of scan reports exported to the collector",
		}),
		ReportExportFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pngsecret_report_export_failures_total",
			Help: "Total number of scan report export failures",
		}),

		// UDP ingest metrics
		DatagramsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pngsecret_udp_datagrams_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pngsecret_udp_validation_failures_total",
			Help: "Total number of UDP datagrams that failed frame validation",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pngsecret_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pngsecret_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordChunkParsed records a successfully parsed chunk frame
func (m *Metrics) RecordChunkParsed(dataBytes int) {
	m.ChunksParsed.Inc()
	m.ChunkSize.Observe(float64(dataBytes))
}

// RecordChunkParseError increments the parse error counter for one kind
func (m *Metrics) RecordChunkParseError(kind string) {
	m.ChunkParseErrors.WithLabelValues(kind).Inc()
}

// RecordChunkParseErrors adds a batch of parse errors of one kind
func (m *Metrics) RecordChunkParseErrors(kind string, count int) {
	m.ChunkParseErrors.WithLabelValues(kind).Add(float64(count))
}

// RecordScan records a completed stream scan
func (m *Metrics) RecordScan(durationSeconds float64, chunks int) {
	m.ScansTotal.Inc()
	m.ScanDuration.Observe(durationSeconds)
	m.ScanChunks.Observe(float64(chunks))
}

// SetActiveReports sets the current number of retained reports
func (m *Metrics) SetActiveReports(count int) {
	m.ActiveReports.Set(float64(count))
}

// RecordSecretOperation increments the operation counter for embed, extract
// or remove
func (m *Metrics) RecordSecretOperation(op string) {
	m.SecretOperations.WithLabelValues(op).Inc()
}

// RecordReportExported increments the exported reports counter
func (m *Metrics) RecordReportExported() {
	m.ReportsExported.Inc()
}

// RecordReportExportFailure increments the export failures counter
func (m *Metrics) RecordReportExportFailure() {
	m.ReportExportFailures.Inc()
}

// RecordDatagramReceived increments the datagrams received counter
func (m *Metrics) RecordDatagramReceived() {
	m.DatagramsReceived.Inc()
}

// RecordValidationFailure increments the validation failures counter
func (m *Metrics) RecordValidationFailure() {
	m.ValidationFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
