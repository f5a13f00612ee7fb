// Package observability holds process-wide Prometheus collectors shared by several packages.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitcoach",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})
	recommendationPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitcoach",
		Subsystem: "persistence",
		Name:      "last_recommendation_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent recommendation upserted.",
	})
	publishFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitcoach",
		Subsystem: "ingestion",
		Name:      "publish_failures_total",
		Help:      "Activities persisted whose event could not be published to the broker.",
	})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, recommendationPersistGauge, publishFailureCounter)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordRecommendationPersisted updates the recommendation watermark gauge.
func RecordRecommendationPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	recommendationPersistGauge.Set(float64(ts.Unix()))
}

// RecordPublishFailure counts an activity event that never reached the broker.
func RecordPublishFailure() {
	publishFailureCounter.Inc()
}

// PublishFailures exposes the counter for assertions in tests.
func PublishFailures() prometheus.Counter {
	return publishFailureCounter
}
