package aggregate

import "github.com/prometheus/client_golang/prometheus"

var (
	staleServedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "aggregate",
		Name:      "stale_served_total",
		Help:      "Number of aggregates served past freshness after a failed refresh.",
	}, []string{"domain"})

	divergenceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "aggregate",
		Name:      "server_divergence_total",
		Help:      "Number of refreshes where the server total was discarded for the client recomputation.",
	}, []string{"domain"})

	clampedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "aggregate",
		Name:      "clamped_values_total",
		Help:      "Number of negative or non-finite record values clamped to zero.",
	}, []string{"domain"})

	duplicateCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "aggregate",
		Name:      "duplicate_records_total",
		Help:      "Number of redelivered records ignored because their ID was already absorbed.",
	}, []string{"domain"})

	refreshDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "healthtrack",
		Subsystem: "aggregate",
		Name:      "refresh_duration_seconds",
		Help:      "Duration of backend refresh calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"domain"})
)

func init() {
	prometheus.MustRegister(staleServedCounter, divergenceCounter, clampedCounter, duplicateCounter, refreshDuration)
}

func recordStaleServed(d string) {
	staleServedCounter.WithLabelValues(d).Inc()
}

func recordDivergence(d string) {
	divergenceCounter.WithLabelValues(d).Inc()
}

func recordClamped(d string) {
	clampedCounter.WithLabelValues(d).Inc()
}

func recordDuplicate(d string) {
	duplicateCounter.WithLabelValues(d).Inc()
}
