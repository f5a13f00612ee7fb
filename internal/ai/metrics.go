package ai

import "github.com/prometheus/client_golang/prometheus"

var (
	requestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "ai_gateway",
		Name:      "requests_total",
		Help:      "Provider calls grouped by final outcome after retries.",
	}, []string{"outcome"})

	retryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "ai_gateway",
		Name:      "retries_total",
		Help:      "Number of retried provider attempts.",
	})

	requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fitcoach",
		Subsystem: "ai_gateway",
		Name:      "request_duration_seconds",
		Help:      "Wall time of GetAnswer including retries.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	breakerStateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitcoach",
		Subsystem: "ai_gateway",
		Name:      "circuit_state",
		Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	})
)

func init() {
	prometheus.MustRegister(requestCounter, retryCounter, requestDuration, breakerStateGauge)
}
