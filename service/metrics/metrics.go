package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Chain RPC Metrics
	rpcCallsTotal   *prometheus.CounterVec
	rpcCallDuration *prometheus.HistogramVec

	// Wallet Session Metrics
	connectAttemptsTotal *prometheus.CounterVec
	syncTotal            *prometheus.CounterVec
	syncDuration         *prometheus.HistogramVec
	providerEventsTotal  *prometheus.CounterVec

	// Transaction Metrics
	transactionsFetchedTotal *prometheus.CounterVec
	blocksScannedTotal       prometheus.Counter
	scanDuration             prometheus.Histogram
	scanWarningsTotal        *prometheus.CounterVec

	// Indexer Metrics
	indexerRequestsTotal   *prometheus.CounterVec
	indexerRequestDuration prometheus.Histogram

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Chain RPC Metrics
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eth_rpc_calls_total",
				Help: "Total number of Ethereum RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eth_rpc_call_duration_seconds",
				Help:    "Duration of Ethereum RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),

		// Wallet Session Metrics
		connectAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_connect_attempts_total",
				Help: "Total number of wallet connect attempts by result",
			},
			[]string{"result"},
		),
		syncTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_sync_total",
				Help: "Total number of session syncs by outcome (success, degraded, superseded)",
			},
			[]string{"status"},
		),
		syncDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_sync_duration_seconds",
				Help:    "Duration of session syncs in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		providerEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_provider_events_total",
				Help: "Total number of provider events handled by kind",
			},
			[]string{"event"},
		),

		// Transaction Metrics
		transactionsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_fetched_total",
				Help: "Total number of transactions loaded into sessions by source",
			},
			[]string{"source"},
		),
		blocksScannedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "recent_activity_blocks_scanned_total",
				Help: "Total number of blocks read by recent-activity scans",
			},
		),
		scanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recent_activity_scan_duration_seconds",
				Help:    "Duration of successful recent-activity scans in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		scanWarningsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recent_activity_scan_warnings_total",
				Help: "Total number of scans that degraded to an empty result",
			},
			[]string{"reason"},
		),

		// Indexer Metrics
		indexerRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_requests_total",
				Help: "Total number of upstream indexing API requests by status",
			},
			[]string{"status"},
		),
		indexerRequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "indexer_request_duration_seconds",
				Help:    "Duration of upstream indexing API requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Chain RPC metric helpers

// RecordRPCCall records an Ethereum RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.rpcCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.rpcCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// Wallet session metric helpers

// RecordConnectAttempt records the result of a connect call.
func (m *Metrics) RecordConnectAttempt(result string) {
	m.connectAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordSync records a session sync outcome with duration.
func (m *Metrics) RecordSync(status string, duration float64) {
	m.syncTotal.WithLabelValues(status).Inc()
	m.syncDuration.WithLabelValues(status).Observe(duration)
}

// RecordProviderEvent records a handled provider event.
func (m *Metrics) RecordProviderEvent(kind string) {
	m.providerEventsTotal.WithLabelValues(kind).Inc()
}

// Transaction metric helpers

// RecordTransactionsFetched records transactions loaded from a source
// ("indexer" or "block_scan").
func (m *Metrics) RecordTransactionsFetched(source string, count int) {
	m.transactionsFetchedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordBlocksScanned records a completed recent-activity scan.
func (m *Metrics) RecordBlocksScanned(blocks int, duration float64) {
	m.blocksScannedTotal.Add(float64(blocks))
	m.scanDuration.Observe(duration)
}

// RecordScanWarning records a scan that degraded to an empty result.
func (m *Metrics) RecordScanWarning(reason string) {
	m.scanWarningsTotal.WithLabelValues(reason).Inc()
}

// Indexer metric helpers

// RecordIndexerRequest records an upstream indexing API request.
func (m *Metrics) RecordIndexerRequest(status string, duration float64) {
	m.indexerRequestsTotal.WithLabelValues(status).Inc()
	m.indexerRequestDuration.Observe(duration)
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
