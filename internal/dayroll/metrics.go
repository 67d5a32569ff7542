package dayroll

import "github.com/prometheus/client_golang/prometheus"

var (
	rollCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "dayroll",
		Name:      "rolls_total",
		Help:      "Number of local-day boundary crossings detected.",
	})

	supersededCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "dayroll",
		Name:      "superseded_total",
		Help:      "Number of in-flight roll invalidations cancelled by a newer roll.",
	})
)

func init() {
	prometheus.MustRegister(rollCounter, supersededCounter)
}

func recordRoll() {
	rollCounter.Inc()
}

func recordSuperseded() {
	supersededCounter.Inc()
}
