package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockin_http_requests_total",
		Help: "Total HTTP requests processed by the gateway",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lockin_http_request_duration_seconds",
		Help:    "HTTP request duration; streaming routes include the whole stream",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
