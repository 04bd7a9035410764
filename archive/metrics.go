package archive

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricStoreCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_archive_store_calls_total",
			Help: "Number of capture store calls",
		},
		[]string{"scene"},
	)
	metricStoreFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_archive_store_failed_total",
			Help: "Number of failed capture store calls",
		},
		[]string{"scene"},
	)
	metricStoreBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_archive_store_bytes_total",
			Help: "Number of compressed capture bytes stored successfully",
		},
		[]string{"scene"},
	)
	metricLastTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshstream_archive_last_stored_unix_seconds",
			Help: "UNIX timestamp of the last stored capture",
		},
		[]string{"scene"},
	)
	metricPruned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_archive_pruned_total",
			Help: "Number of old captures removed",
		},
		[]string{"scene"},
	)
)

func init() {
	prometheus.MustRegister(metricStoreCalls)
	prometheus.MustRegister(metricStoreFailed)
	prometheus.MustRegister(metricStoreBytes)
	prometheus.MustRegister(metricLastTimestamp)
	prometheus.MustRegister(metricPruned)
}
