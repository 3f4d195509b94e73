// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered for one engine instance.
type Metrics struct {
	Transitions      *prometheus.CounterVec
	Calculations     *prometheus.CounterVec
	SnapshotRestores prometheus.Counter
	Supersessions    prometheus.Counter
	CalcDuration     prometheus.Histogram
}

// New registers the collectors on the given registerer. Pass
// prometheus.NewRegistry() in tests to avoid global registration conflicts.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliefgrid",
			Name:      "needs_list_transitions_total",
			Help:      "Needs-list status transitions by source and target status.",
		}, []string{"from", "to"}),
		Calculations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliefgrid",
			Name:      "demand_calculations_total",
			Help:      "Per-item demand calculations by confidence level.",
		}, []string{"confidence"}),
		SnapshotRestores: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reliefgrid",
			Name:      "snapshot_restores_total",
			Help:      "Previews answered from the snapshot cache during source outages.",
		}),
		Supersessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reliefgrid",
			Name:      "needs_list_supersessions_total",
			Help:      "Open records displaced by a newer draft in the same scope.",
		}),
		CalcDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reliefgrid",
			Name:      "demand_calculation_seconds",
			Help:      "Wall time of full preview calculations.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
