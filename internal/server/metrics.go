package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recibo_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recibo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	scanRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recibo_scan_requests_total",
			Help: "Total number of receipt scan requests",
		},
		[]string{"transport", "status"}, // transport: http, websocket
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recibo_scan_duration_seconds",
			Help:    "Receipt scan duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"transport"},
	)

	itemsExtracted = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recibo_scan_items_extracted",
			Help:    "Number of line items extracted per scan",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"transport"},
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recibo_upload_size_bytes",
			Help:    "Size of uploaded receipt images in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 512 * 1024, 1024 * 1024, 2 * 1024 * 1024, 5 * 1024 * 1024},
		},
	)

	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recibo_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"type"},
	)

	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recibo_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recibo_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
