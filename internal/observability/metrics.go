package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "safety",
		Name:      "frames_received_total",
		Help:      "Total number of binary frames received by the relay",
	}, []string{"outcome"})

	RecognitionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "safety",
		Name:      "recognition_results_total",
		Help:      "Recognition replies sent to frame senders, by status",
	}, []string{"status"})

	BackendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "safety",
		Name:      "backend_request_duration_seconds",
		Help:      "Duration of calls to the recognition backend",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"operation"})

	ReplyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "safety",
		Name:      "relay_reply_failures_total",
		Help:      "Replies that could not be written back to the frame sender",
	})

	RelaySessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "safety",
		Name:      "relay_sessions",
		Help:      "Number of active frame relay sessions",
	})

	BroadcastSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "safety",
		Name:      "broadcast_subscribers",
		Help:      "Number of connected recognition observers",
	})

	BroadcastDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "safety",
		Name:      "broadcast_delivered_total",
		Help:      "Recognition events queued for an observer",
	})

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "safety",
		Name:      "broadcast_dropped_total",
		Help:      "Recognition events dropped because an observer buffer was full",
	})

	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "safety",
		Name:      "enrollments_total",
		Help:      "Enrollment operations by operation and outcome",
	}, []string{"operation", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "safety",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
