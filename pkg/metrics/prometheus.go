package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Database Metrics
	dbQueryDuration     *prometheus.HistogramVec
	dbConnectionsActive prometheus.Gauge
	dbConnectionsIdle   prometheus.Gauge
	dbQueryErrorsTotal  *prometheus.CounterVec

	// Redis Metrics
	redisCommandsTotal   *prometheus.CounterVec
	redisCommandDuration *prometheus.HistogramVec
	redisErrorsTotal     *prometheus.CounterVec

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec

	// Message Metrics
	messagesSentTotal     *prometheus.CounterVec
	messagesEditedTotal   prometheus.Counter
	messagesDeletedTotal  prometheus.Counter
	reactionsTotal        *prometheus.CounterVec
	conversationsCreated  *prometheus.CounterVec
	readReceiptsTotal     *prometheus.CounterVec
	unauthorizedSendTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(serviceName string) *Metrics {
	m := &Metrics{
		// HTTP Request Metrics
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),

		// Database Metrics
		dbQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "db_query_duration_seconds",
				Help:        "Database query latency in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		dbConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "db_connections_active",
				Help:        "Number of active database connections",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		dbConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "db_connections_idle",
				Help:        "Number of idle database connections",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		dbQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "db_query_errors_total",
				Help:        "Total number of database query errors",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"operation", "table"},
		),

		// Redis Metrics
		redisCommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "redis_commands_total",
				Help:        "Total number of Redis commands",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"command"},
		),
		redisCommandDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "redis_command_duration_seconds",
				Help:        "Redis command latency in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		redisErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "redis_errors_total",
				Help:        "Total number of Redis errors",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"command"},
		),

		// WebSocket Metrics
		websocketConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		websocketMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"type", "direction"},
		),
		websocketErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"error"},
		),

		// Message Metrics
		messagesSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "messages_sent_total",
				Help:        "Total number of messages sent",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"type"},
		),
		messagesEditedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "messages_edited_total",
				Help:        "Total number of messages edited",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		messagesDeletedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "messages_deleted_total",
				Help:        "Total number of messages soft-deleted",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		reactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "message_reactions_total",
				Help:        "Total number of reaction add/remove operations",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"action"},
		),
		conversationsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "conversations_created_total",
				Help:        "Total number of conversations created",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"kind"},
		),
		readReceiptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "read_receipts_total",
				Help:        "Total number of read receipt operations",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"scope"},
		),
		unauthorizedSendTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "messages_send_unauthorized_total",
				Help:        "Total number of sends rejected for missing membership",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
	}

	return m
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// Database Metrics Methods

// RecordDBQuery records a database query
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		m.dbQueryErrorsTotal.WithLabelValues(operation, table).Inc()
	}
}

// SetDBConnections sets the number of database connections
func (m *Metrics) SetDBConnections(active, idle int) {
	m.dbConnectionsActive.Set(float64(active))
	m.dbConnectionsIdle.Set(float64(idle))
}

// Redis Metrics Methods

// RecordRedisCommand records a Redis command
func (m *Metrics) RecordRedisCommand(command string, duration time.Duration, err error) {
	m.redisCommandsTotal.WithLabelValues(command).Inc()
	m.redisCommandDuration.WithLabelValues(command).Observe(duration.Seconds())
	if err != nil {
		m.redisErrorsTotal.WithLabelValues(command).Inc()
	}
}

// WebSocket Metrics Methods

// IncrementWebSocketConnections increments the active WebSocket connection gauge
func (m *Metrics) IncrementWebSocketConnections() {
	m.websocketConnections.Inc()
}

// DecrementWebSocketConnections decrements the active WebSocket connection gauge
func (m *Metrics) DecrementWebSocketConnections() {
	m.websocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(err string) {
	m.websocketErrorsTotal.WithLabelValues(err).Inc()
}

// Messaging Metrics Methods

// RecordMessageSent records a sent message
func (m *Metrics) RecordMessageSent(msgType string) {
	m.messagesSentTotal.WithLabelValues(msgType).Inc()
}

// RecordMessageEdited records an edited message
func (m *Metrics) RecordMessageEdited() {
	m.messagesEditedTotal.Inc()
}

// RecordMessageDeleted records a soft-deleted message
func (m *Metrics) RecordMessageDeleted() {
	m.messagesDeletedTotal.Inc()
}

// RecordReaction records a reaction operation ("add" or "remove")
func (m *Metrics) RecordReaction(action string) {
	m.reactionsTotal.WithLabelValues(action).Inc()
}

// RecordConversationCreated records a created conversation by kind
func (m *Metrics) RecordConversationCreated(kind string) {
	m.conversationsCreated.WithLabelValues(kind).Inc()
}

// RecordReadReceipt records a read receipt operation ("conversation" or "message")
func (m *Metrics) RecordReadReceipt(scope string) {
	m.readReceiptsTotal.WithLabelValues(scope).Inc()
}

// RecordUnauthorizedSend records a send rejected for missing membership
func (m *Metrics) RecordUnauthorizedSend() {
	m.unauthorizedSendTotal.Inc()
}
