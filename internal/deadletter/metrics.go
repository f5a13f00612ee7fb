package deadletter

import "github.com/prometheus/client_golang/prometheus"

var (
	writtenCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "dlq",
		Name:      "messages_written_total",
		Help:      "Number of messages stored in the dead-letter table.",
	}, []string{"topic"})

	replayedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "dlq",
		Name:      "messages_replayed_total",
		Help:      "Number of dead-letter entries republished to Kafka.",
	}, []string{"topic"})

	quarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "dlq",
		Name:      "messages_quarantined_total",
		Help:      "Number of dead-letter entries quarantined after exhausting retries.",
	}, []string{"topic"})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "dlq",
		Name:      "retry_scheduled_total",
		Help:      "Number of times a dead-letter entry was scheduled for a future replay.",
	}, []string{"topic"})

	backlogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitcoach",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Current number of entries waiting for replay.",
	})
)

func init() {
	prometheus.MustRegister(writtenCounter, replayedCounter, quarantinedCounter, retryCounter, backlogGauge)
}

func recordWritten(topic string)        { writtenCounter.WithLabelValues(topic).Inc() }
func recordReplayed(topic string)       { replayedCounter.WithLabelValues(topic).Inc() }
func recordQuarantined(topic string)    { quarantinedCounter.WithLabelValues(topic).Inc() }
func recordRetryScheduled(topic string) { retryCounter.WithLabelValues(topic).Inc() }
