package service

import "github.com/prometheus/client_golang/prometheus"

var (
	assignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "alumate", Subsystem: "ab", Name: "assignments_total", Help: "Subjects assigned to variants."},
		[]string{"test_id", "variant_id"},
	)
	exclusionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "alumate", Subsystem: "ab", Name: "exclusions_total", Help: "Subjects excluded by the traffic-allocation gate."},
		[]string{"test_id"},
	)
	conversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "alumate", Subsystem: "ab", Name: "conversions_total", Help: "Conversions recorded per variant and goal."},
		[]string{"test_id", "variant_id", "goal_id"},
	)
	counterWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "alumate", Subsystem: "ab", Name: "counter_write_failures_total", Help: "Best-effort counter increments that failed."},
	)
)

func init() {
	_ = prometheus.Register(assignmentsTotal)
	_ = prometheus.Register(exclusionsTotal)
	_ = prometheus.Register(conversionsTotal)
	_ = prometheus.Register(counterWriteFailures)
}
