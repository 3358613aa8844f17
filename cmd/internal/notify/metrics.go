package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricShown = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "foodscan_notify_shown_total",
	Help: "Notifications displayed, by kind.",
}, []string{"kind"})
