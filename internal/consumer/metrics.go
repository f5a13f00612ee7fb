package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of Kafka messages successfully handled.",
	}, []string{"topic"})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "consumer",
		Name:      "retries_total",
		Help:      "Number of handler attempts that failed and were retried.",
	}, []string{"topic"})

	deadLetterCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "consumer",
		Name:      "dead_lettered_total",
		Help:      "Number of messages dead-lettered after exhausting their attempts.",
	}, []string{"topic"})

	stageFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "consumer",
		Name:      "stage_failures_total",
		Help:      "Recommendation pipeline failures grouped by stage.",
	}, []string{"stage"})

	skippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "consumer",
		Name:      "messages_skipped_total",
		Help:      "Messages ignored because of their event type.",
	}, []string{"event_type"})

	fetchErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "consumer",
		Name:      "fetch_errors_total",
		Help:      "Number of failed fetches from Kafka.",
	})

	commitErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "consumer",
		Name:      "commit_errors_total",
		Help:      "Number of failed offset commits per topic.",
	}, []string{"topic"})

	inFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitcoach",
		Subsystem: "consumer",
		Name:      "messages_in_flight",
		Help:      "Messages currently held by a worker.",
	})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fitcoach",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(
		processedCounter,
		retryCounter,
		deadLetterCounter,
		stageFailureCounter,
		skippedCounter,
		fetchErrorCounter,
		commitErrorCounter,
		inFlightGauge,
		lastMessageGauge,
	)
}

func recordProcessed(topic string, ts time.Time) {
	processedCounter.WithLabelValues(topic).Inc()
	if !ts.IsZero() {
		lastMessageGauge.WithLabelValues(topic).Set(float64(ts.Unix()))
	}
}

func recordRetry(topic string) {
	retryCounter.WithLabelValues(topic).Inc()
}

func recordDeadLettered(topic string) {
	deadLetterCounter.WithLabelValues(topic).Inc()
}

func recordStageFailure(stage string) {
	stageFailureCounter.WithLabelValues(stage).Inc()
}

func recordSkipped(eventType string) {
	skippedCounter.WithLabelValues(eventType).Inc()
}

func recordFetchError() {
	fetchErrorCounter.Inc()
}

func recordCommitError(topic string) {
	commitErrorCounter.WithLabelValues(topic).Inc()
}
