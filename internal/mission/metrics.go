package mission

import "github.com/prometheus/client_golang/prometheus"

var (
	completedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "mission",
		Name:      "completed_total",
		Help:      "Number of missions completed per category.",
	}, []string{"category"})

	pointsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "mission",
		Name:      "points_awarded_total",
		Help:      "Total points awarded across all users.",
	})

	expiredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "mission",
		Name:      "expired_total",
		Help:      "Number of daily missions expired at day roll.",
	})

	integritySkipCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "mission",
		Name:      "integrity_skips_total",
		Help:      "Number of missions skipped due to missing definitions.",
	})

	clampedProgressCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "mission",
		Name:      "clamped_progress_total",
		Help:      "Number of negative or non-finite progress values clamped to zero.",
	})
)

func init() {
	prometheus.MustRegister(completedCounter, pointsCounter, expiredCounter, integritySkipCounter, clampedProgressCounter)
}

func recordCompleted(category string, points int) {
	completedCounter.WithLabelValues(category).Inc()
	pointsCounter.Add(float64(points))
}

func recordExpired() {
	expiredCounter.Inc()
}

func recordIntegritySkip() {
	integritySkipCounter.Inc()
}

func recordClampedProgress() {
	clampedProgressCounter.Inc()
}
