package scene

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricPrimitives = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshstream_scene_primitives",
			Help: "Number of primitives in the scene",
		},
		[]string{"scene"},
	)
	metricStripesBuilt = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_scene_stripes_built_total",
			Help: "Number of stripes built by primitive partitioning",
		},
		[]string{"scene"},
	)
	metricPartitionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_scene_partition_failures_total",
			Help: "Number of times primitive partitioning failed",
		},
		[]string{"scene"},
	)
	metricMutationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_scene_mutation_errors_total",
			Help: "Number of rejected scene mutations",
		},
		[]string{"scene", "op"},
	)
	metricUpdateRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_scene_update_retries_total",
			Help: "Number of updates staged again because the primitive changed during staging",
		},
		[]string{"scene"},
	)
	metricSnapshots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_scene_snapshots_total",
			Help: "Number of flush snapshots taken",
		},
		[]string{"scene"},
	)
	metricSlowLocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_scene_slow_locks_total",
			Help: "Number of times the scene lock was held longer than the limit",
		},
		[]string{"scene"},
	)
)

func init() {
	prometheus.MustRegister(metricPrimitives)
	prometheus.MustRegister(metricStripesBuilt)
	prometheus.MustRegister(metricPartitionFailures)
	prometheus.MustRegister(metricMutationErrors)
	prometheus.MustRegister(metricUpdateRetries)
	prometheus.MustRegister(metricSnapshots)
	prometheus.MustRegister(metricSlowLocks)
}
