package egress

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "egress",
		Name:      "events_published_total",
		Help:      "Number of events successfully published to Kafka.",
	}, []string{"topic", "event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "egress",
		Name:      "events_failed_total",
		Help:      "Number of events that failed to publish, labeled by topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(publishedCounter, failedCounter)
}

func recordPublished(topic, eventType string) {
	publishedCounter.WithLabelValues(topic, eventType).Inc()
}

func recordPublishFailure(topic string) {
	failedCounter.WithLabelValues(topic).Inc()
}
