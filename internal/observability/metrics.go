package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordIngestedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthtrack",
		Subsystem: "ingestion",
		Name:      "last_record_ingested_timestamp_seconds",
		Help:      "Unix timestamp of the most recent tracking record ingested.",
	})
	trackedUsersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthtrack",
		Subsystem: "ingestion",
		Name:      "tracked_users",
		Help:      "Number of users currently registered for day-roll sweeps.",
	})
)

func init() {
	prometheus.MustRegister(recordIngestedGauge, trackedUsersGauge)
}

// RecordIngested updates the ingestion watermark gauge.
func RecordIngested(ts time.Time) {
	if ts.IsZero() {
		return
	}
	recordIngestedGauge.Set(float64(ts.Unix()))
}

// SetTrackedUsers updates the tracked-user count.
func SetTrackedUsers(n int) {
	trackedUsersGauge.Set(float64(n))
}
