package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meshstream_transport_connections_total",
			Help: "Number of accepted WebSocket connections",
		},
	)
	metricRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_transport_rejected_total",
			Help: "Number of WebSocket connections rejected, by reason",
		},
		[]string{"reason"},
	)
	metricOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshstream_transport_open_connections",
			Help: "Number of currently open WebSocket connections",
		},
	)
	metricMessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_transport_messages_sent_total",
			Help: "Number of messages sent, by message type",
		},
		[]string{"type"},
	)
	metricBytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_transport_bytes_sent_total",
			Help: "Payload bytes sent before compression, by message type",
		},
		[]string{"type"},
	)
	metricMessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshstream_transport_messages_received_total",
			Help: "Number of messages received, by message type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(metricConnections)
	prometheus.MustRegister(metricRejected)
	prometheus.MustRegister(metricOpen)
	prometheus.MustRegister(metricMessagesSent)
	prometheus.MustRegister(metricBytesSent)
	prometheus.MustRegister(metricMessagesReceived)
}
