package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queue metrics (internal/mqueue)

	// QueueMessagesDispatched tracks total messages dispatched per queue
	QueueMessagesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayqueue",
			Subsystem: "queue",
			Name:      "messages_dispatched_total",
			Help:      "Total messages dispatched per queue",
		},
		[]string{"queue"},
	)

	// QueueDispatchDuration tracks handler callback duration
	QueueDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relayqueue",
			Subsystem: "queue",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent inside a handler callback",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	// QueueReadyDepth tracks the ready-list length of a queue
	QueueReadyDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relayqueue",
			Subsystem: "queue",
			Name:      "ready_depth",
			Help:      "Number of entries currently on a queue's ready list",
		},
		[]string{"queue"},
	)

	// QueueTimerDepth tracks the pending timer-heap length of a queue
	QueueTimerDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relayqueue",
			Subsystem: "queue",
			Name:      "timer_depth",
			Help:      "Number of delayed/periodic entries pending on a queue",
		},
		[]string{"queue"},
	)

	// QueueMessagesCancelled tracks cancelled posts per queue
	QueueMessagesCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayqueue",
			Subsystem: "queue",
			Name:      "messages_cancelled_total",
			Help:      "Total posts cancelled before or during dispatch",
		},
		[]string{"queue"},
	)

	// Webhook mediator metrics (internal/relay/webhook)

	// WebhookHTTPRequests tracks HTTP requests made by the webhook mediator
	WebhookHTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayqueue",
			Subsystem: "webhook",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests made delivering webhooks",
		},
		[]string{"status_code", "target"},
	)

	// WebhookHTTPDuration tracks webhook delivery duration
	WebhookHTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relayqueue",
			Subsystem: "webhook",
			Name:      "http_duration_seconds",
			Help:      "Webhook HTTP delivery duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"target"},
	)

	// WebhookCircuitBreakerState tracks circuit breaker state per target
	// 0 = closed (healthy), 1 = open (tripped), 2 = half-open (testing)
	WebhookCircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relayqueue",
			Subsystem: "webhook",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"target"},
	)

	// WebhookCircuitBreakerTrips tracks circuit breaker trip events
	WebhookCircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayqueue",
			Subsystem: "webhook",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total circuit breaker trip events",
		},
		[]string{"target"},
	)

	// SQS bridge metrics (internal/relay/sqsbridge)

	// SQSMessagesReceived tracks messages received from SQS
	SQSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayqueue",
			Subsystem: "sqs",
			Name:      "messages_received_total",
			Help:      "Total messages received from the bridged SQS queue",
		},
		[]string{"queue_url"},
	)

	// SQSPublishErrors tracks SQS publish/receive/delete errors
	SQSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayqueue",
			Subsystem: "sqs",
			Name:      "errors_total",
			Help:      "Total SQS client errors",
		},
		[]string{"queue_url", "op"},
	)

	// Notify metrics (internal/relay/notify)

	// NotifyMessagesPublished tracks messages published to NATS
	NotifyMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayqueue",
			Subsystem: "notify",
			Name:      "messages_published_total",
			Help:      "Total messages published to NATS subjects",
		},
		[]string{"subject"},
	)

	// Leader election metrics (internal/relay/leader)

	// LeaderElectionState reports 1 if this process currently holds the lock
	LeaderElectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "relayqueue",
			Subsystem: "leader",
			Name:      "held",
			Help:      "1 if this process currently holds the leader lock, else 0",
		},
	)

	// Admin HTTP API metrics (internal/relay/adminapi)

	// HTTPRequestsTotal tracks HTTP API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayqueue",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP API request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relayqueue",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP API request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// CircuitBreakerState constants
const (
	CircuitBreakerClosed   = 0
	CircuitBreakerOpen     = 1
	CircuitBreakerHalfOpen = 2
)
