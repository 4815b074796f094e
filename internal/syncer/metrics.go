// internal/syncer/metrics.go
package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicsync_fetch_cycles_total",
		Help: "Fetch cycles run per data domain, by result.",
	}, []string{"domain", "result"})

	sliceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicsync_slice_fetch_failures_total",
		Help: "Individual entity fetch failures per domain and slice.",
	}, []string{"domain", "slice"})

	cycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinicsync_fetch_cycle_duration_seconds",
		Help:    "Wall time of complete fetch cycles per domain.",
		Buckets: prometheus.DefBuckets,
	}, []string{"domain"})
)
