package demo

import (
	"github.com/prometheus/client_golang/prometheus"
)

var metricSteps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "meshstream_demo_steps_total",
		Help: "Number of demo animation steps",
	},
	[]string{"scene"},
)

func init() {
	prometheus.MustRegister(metricSteps)
}
