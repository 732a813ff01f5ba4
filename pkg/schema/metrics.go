package schema

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the counters of one Manager. They are registered on the
// configured registerer so two managers in one process do not collide.
type Metrics struct {
	CacheSize       prometheus.Gauge
	Snapshots       prometheus.Gauge
	Quarantines     prometheus.Counter
	AreaMoves       prometheus.Counter
	MoveRollbacks   prometheus.Counter
	RecoveryRecords *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "schemacore",
			Subsystem: "object_tree",
			Name:      "cache_size",
		}),
		Snapshots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "schemacore",
			Subsystem: "snapshot",
			Name:      "snapshots",
		}),
		Quarantines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schemacore",
			Subsystem: "database",
			Name:      "quarantines",
		}),
		AreaMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schemacore",
			Subsystem: "area",
			Name:      "moves",
		}),
		MoveRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schemacore",
			Subsystem: "area",
			Name:      "move_rollbacks",
		}),
		RecoveryRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemacore",
			Subsystem: "recovery",
			Name:      "records",
		}, []string{"direction", "category"}),
	}
	reg.MustRegister(m.CacheSize, m.Snapshots, m.Quarantines, m.AreaMoves, m.MoveRollbacks, m.RecoveryRecords)
	return m
}
