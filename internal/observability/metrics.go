package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "doorstep_deposits"

var (
	HoldsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "holds_created_total", Help: "Deposits recorded as authorized, by creation path"},
		[]string{"path"},
	)
	HoldsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "holds_rejected_total", Help: "Hold operations rejected, by operation and error kind"},
		[]string{"operation", "kind"},
	)
	CheckoutSessions = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "checkout_sessions_total", Help: "Hosted checkout sessions created"})
	CallbackReplays  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "checkout_callback_replays_total", Help: "Success callbacks for an already recorded authorization"})
	Captures         = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "captures_total", Help: "Deposits captured"})
	CapturedCents    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "captured_amount_cents_total", Help: "Sum of captured amounts in minor units"})

	GatewayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "gateway_errors_total", Help: "Failed payment gateway calls"},
		[]string{"operation"},
	)
	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "gateway_call_duration_seconds", Help: "Payment gateway call latency", Buckets: prometheus.DefBuckets},
		[]string{"operation"},
	)
	EventPublishErrors = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "event_publish_errors_total", Help: "Deposit events that failed to publish"})
	WSSubscribers      = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_subscribers", Help: "Connected websocket consoles"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
