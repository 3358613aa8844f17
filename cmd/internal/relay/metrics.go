package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foodscan_relay_connections",
		Help: "Currently connected relay members.",
	})

	metricFramesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foodscan_relay_frames_relayed_total",
		Help: "Frames delivered to member send queues.",
	})

	metricFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foodscan_relay_frames_dropped_total",
		Help: "Frames dropped due to member backpressure.",
	})
)
