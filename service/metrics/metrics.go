package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Explorer API Metrics
	explorerCallsTotal    *prometheus.CounterVec
	explorerCallDuration  *prometheus.HistogramVec
	explorerBreakerState  *prometheus.GaugeVec
	explorerBreakerTrips  *prometheus.CounterVec
	explorerRateLimitWait *prometheus.HistogramVec

	// Lookup Metrics
	lookupsTotal               *prometheus.CounterVec
	transactionsRequestedTotal prometheus.Counter
	transactionsFetchedTotal   prometheus.Counter
	privacyScore               prometheus.Histogram

	// Session Metrics
	activeSessions  prometheus.Gauge
	staleCompletion prometheus.Counter

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   prometheus.Histogram
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		explorerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "explorer_calls_total",
				Help: "Total number of explorer API calls by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		explorerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "explorer_call_duration_seconds",
				Help:    "Duration of explorer API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint"},
		),
		explorerBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "explorer_circuit_breaker_state",
				Help: "Explorer circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),
		explorerBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "explorer_circuit_breaker_transitions_total",
				Help: "Total number of explorer circuit breaker state transitions",
			},
			[]string{"breaker", "to"},
		),
		explorerRateLimitWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "explorer_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the explorer rate limiter",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"endpoint"},
		),

		lookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "privacy_lookups_total",
				Help: "Total number of privacy score lookups by outcome and fallback reason",
			},
			[]string{"outcome", "reason"},
		),
		transactionsRequestedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "privacy_transactions_requested_total",
				Help: "Total number of transaction details requested from the explorer",
			},
		),
		transactionsFetchedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "privacy_transactions_fetched_total",
				Help: "Total number of transaction details fetched successfully",
			},
		),
		privacyScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "privacy_score",
				Help:    "Distribution of computed live privacy scores",
				Buckets: []float64{0, 10, 25, 50, 75, 80, 90, 100},
			},
		),

		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_active",
				Help: "Number of live browser sessions",
			},
		),
		staleCompletion: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "session_stale_completions_total",
				Help: "Fetch completions discarded because a newer fetch was dispatched",
			},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
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

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"status"},
		),
		natsPublishDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
	}
}

// Explorer metric helpers

// RecordExplorerCall records an explorer API call with duration.
func (m *Metrics) RecordExplorerCall(endpoint string, err error, duration float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.explorerCallsTotal.WithLabelValues(endpoint, status).Inc()
	m.explorerCallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordBreakerState records a circuit breaker transition.
// state follows gobreaker's numbering: 0 closed, 1 half-open, 2 open.
func (m *Metrics) RecordBreakerState(breaker string, state int, to string) {
	m.explorerBreakerState.WithLabelValues(breaker).Set(float64(state))
	m.explorerBreakerTrips.WithLabelValues(breaker, to).Inc()
}

// RecordRateLimitWait records time spent blocked on the rate limiter.
func (m *Metrics) RecordRateLimitWait(endpoint string, duration float64) {
	m.explorerRateLimitWait.WithLabelValues(endpoint).Observe(duration)
}

// Lookup metric helpers

// RecordLookup records a lookup outcome ("live", "fallback", "invalid").
func (m *Metrics) RecordLookup(outcome, reason string) {
	m.lookupsTotal.WithLabelValues(outcome, reason).Inc()
}

// RecordTransactionsFetched records how many details were requested and fetched.
func (m *Metrics) RecordTransactionsFetched(requested, fetched int) {
	m.transactionsRequestedTotal.Add(float64(requested))
	m.transactionsFetchedTotal.Add(float64(fetched))
}

// RecordScore records a computed live score.
func (m *Metrics) RecordScore(score int) {
	m.privacyScore.Observe(float64(score))
}

// Session metric helpers

// SetActiveSessions records the number of live sessions.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// RecordStaleCompletion records a discarded fetch completion.
func (m *Metrics) RecordStaleCompletion() {
	m.staleCompletion.Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
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
func (m *Metrics) RecordNATSPublish(err error, duration float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.natsMessagesPublished.WithLabelValues(status).Inc()
	m.natsPublishDuration.Observe(duration)
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
