package bus

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Number of events accepted for delivery.",
	}, []string{"event_type"})

	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "bus",
		Name:      "events_delivered_total",
		Help:      "Number of events delivered to all subscribers.",
	}, []string{"event_type"})

	subscriberFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "bus",
		Name:      "subscriber_failures_total",
		Help:      "Number of subscriber errors or panics, isolated from delivery.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(publishedCounter, deliveredCounter, subscriberFailureCounter)
}

func recordPublished(eventType string) {
	publishedCounter.WithLabelValues(eventType).Inc()
}

func recordDelivered(eventType string) {
	deliveredCounter.WithLabelValues(eventType).Inc()
}

func recordSubscriberFailure(eventType string) {
	subscriberFailureCounter.WithLabelValues(eventType).Inc()
}
