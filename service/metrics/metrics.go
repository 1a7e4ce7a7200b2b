package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	rpcCallsTotal     *prometheus.CounterVec
	rpcCallDuration   *prometheus.HistogramVec
	rpcRateLimitHits  *prometheus.CounterVec
	rpcRetries        *prometheus.CounterVec
	rpcSignaturesSeen *prometheus.HistogramVec

	// Transaction Processing Metrics
	transactionsFetchedTotal *prometheus.CounterVec
	transactionsParsedTotal  *prometheus.CounterVec

	// Change Detection Metrics
	changeEventsTotal      *prometheus.CounterVec
	detectionCycleDuration *prometheus.HistogramVec

	// Analytics Metrics
	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	// Notification Metrics
	notificationsPublished *prometheus.CounterVec
	publishDuration        *prometheus.HistogramVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// Workflow Metrics
	activityDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		rpcRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		rpcRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method"},
		),
		rpcSignaturesSeen: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures returned per GetSignaturesForAddress call",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),

		// Transaction Processing Metrics
		transactionsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_fetched_total",
				Help: "Total number of transactions fetched from the ledger",
			},
			[]string{"address"},
		),
		transactionsParsedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_parsed_total",
				Help: "Total number of transaction parse attempts",
			},
			[]string{"address", "status"},
		),

		// Change Detection Metrics
		changeEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "change_events_total",
				Help: "Total number of change events emitted by the detector",
			},
			[]string{"wallet", "kind"},
		),
		detectionCycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "detection_cycle_duration_seconds",
				Help:    "Duration of a full watch cycle for one wallet in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"wallet", "status"},
		),

		// Analytics Metrics
		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_queries_total",
				Help: "Total number of analytics queries by intent and outcome",
			},
			[]string{"intent", "status"},
		),
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_query_duration_seconds",
				Help:    "Duration of analytics query evaluation in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"intent"},
		),

		// Notification Metrics
		notificationsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_published_total",
				Help: "Total number of change notifications published",
			},
			[]string{"wallet", "status"},
		),
		publishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notification_publish_duration_seconds",
				Help:    "Duration of notification publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"wallet"},
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

		// Workflow Metrics
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watch_activity_duration_seconds",
				Help:    "Duration of watch workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "address"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.rpcCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.rpcCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.rpcRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method string) {
	m.rpcRetries.WithLabelValues(method).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures returned.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.rpcSignaturesSeen.WithLabelValues(endpoint).Observe(count)
}

// Transaction processing metric helpers

// RecordTransactionsFetched records transactions fetched for an address.
func (m *Metrics) RecordTransactionsFetched(address string, count int) {
	m.transactionsFetchedTotal.WithLabelValues(address).Add(float64(count))
}

// RecordTransactionParsed records a transaction parse attempt.
func (m *Metrics) RecordTransactionParsed(address, status string) {
	m.transactionsParsedTotal.WithLabelValues(address, status).Inc()
}

// Change detection metric helpers

// RecordChangeEvent records one emitted change event.
func (m *Metrics) RecordChangeEvent(wallet, kind string) {
	m.changeEventsTotal.WithLabelValues(wallet, kind).Inc()
}

// RecordDetectionCycle records a completed watch cycle for a wallet.
func (m *Metrics) RecordDetectionCycle(wallet, status string, duration float64) {
	m.detectionCycleDuration.WithLabelValues(wallet, status).Observe(duration)
}

// Analytics metric helpers

// RecordQuery records an analytics query with its classified intent,
// outcome status, and duration.
func (m *Metrics) RecordQuery(intent, status string, duration float64) {
	m.queriesTotal.WithLabelValues(intent, status).Inc()
	m.queryDuration.WithLabelValues(intent).Observe(duration)
}

// Notification metric helpers

// RecordNotificationPublished records a publish attempt for a wallet.
func (m *Metrics) RecordNotificationPublished(wallet, status string, duration float64) {
	m.notificationsPublished.WithLabelValues(wallet, status).Inc()
	m.publishDuration.WithLabelValues(wallet).Observe(duration)
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// Workflow metric helpers

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, address string, duration float64) {
	m.activityDuration.WithLabelValues(activity, address).Observe(duration)
}

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
