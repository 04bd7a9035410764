package streamer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_streamer_flushes_total",
			Help: "Number of flush cycles",
		},
		[]string{"scene"},
	)
	metricFlushSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshstream_streamer_flush_duration_seconds",
			Help:    "Time spent encoding and sending one flush cycle",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"scene"},
	)
	metricFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_streamer_frames_sent_total",
			Help: "Number of frames sent to clients",
		},
		[]string{"scene", "kind"},
	)
	metricBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_streamer_bytes_sent_total",
			Help: "Number of frame bytes sent to clients",
		},
		[]string{"scene", "kind"},
	)
	metricClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshstream_streamer_clients",
			Help: "Number of connected clients",
		},
		[]string{"scene"},
	)
	metricSendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_streamer_send_failures_total",
			Help: "Number of clients dropped after a failed send",
		},
		[]string{"scene"},
	)
	metricResyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_streamer_resyncs_total",
			Help: "Number of full resends requested by clients",
		},
		[]string{"scene"},
	)
	metricArchiveFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_streamer_archive_failures_total",
			Help: "Number of failed capture attempts",
		},
		[]string{"scene"},
	)
)

func init() {
	prometheus.MustRegister(metricFlushes)
	prometheus.MustRegister(metricFlushSeconds)
	prometheus.MustRegister(metricFrames)
	prometheus.MustRegister(metricBytes)
	prometheus.MustRegister(metricClients)
	prometheus.MustRegister(metricSendFailures)
	prometheus.MustRegister(metricResyncs)
	prometheus.MustRegister(metricArchiveFailures)
}
