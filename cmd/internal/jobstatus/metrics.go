package jobstatus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "foodscan_jobstatus_publish_total",
	Help: "Job-status publishes, by broadcast outcome.",
}, []string{"outcome"})
