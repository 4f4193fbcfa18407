package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentfeed_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contentfeed_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	sseClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "contentfeed_change_stream_clients",
		Help: "Connected change stream clients",
	})

	droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentfeed_change_stream_dropped_events_total",
		Help: "Change events skipped because a client was not keeping up",
	})
)
