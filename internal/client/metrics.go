package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	clientRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferclient",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Total client calls by operation and outcome.",
	}, []string{"op", "outcome"})

	clientDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inferclient",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Client call duration by operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(clientRequests, clientDuration)
}

// outcome buckets an error into a low-cardinality label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsModelNotFound(err):
		return "model_not_found"
	case IsTransport(err):
		return "transport_error"
	case IsServer(err):
		return "server_error"
	default:
		return "error"
	}
}

func observe(op string, start time.Time, err error) {
	clientRequests.WithLabelValues(op, outcome(err)).Inc()
	clientDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
