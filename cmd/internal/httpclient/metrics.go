package httpclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "foodscan",
		Subsystem: "httpclient",
		Name:      "refresh_total",
		Help:      "Credential refresh attempts by outcome.",
	}, []string{"outcome"})

	metricRefreshCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "foodscan",
		Subsystem: "httpclient",
		Name:      "refresh_coalesced_total",
		Help:      "Requests that waited on an in-flight refresh instead of starting their own.",
	})
)
