package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seclabel_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seclabel_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seclabel_events_ingested_total",
			Help: "Total number of events fetched from sources, by outcome",
		},
		[]string{"source", "outcome"},
	)

	EventsLabeled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seclabel_events_labeled_total",
			Help: "Total number of label writes, by mode",
		},
		[]string{"mode"},
	)

	EventsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seclabel_events_purged_total",
			Help: "Total number of events removed by the retention sweep",
		},
	)

	ExportJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seclabel_export_jobs_total",
			Help: "Export jobs reaching a status",
		},
		[]string{"format", "status"},
	)

	ExportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seclabel_export_duration_seconds",
			Help:    "Time taken to write an export file",
			Buckets: prometheus.DefBuckets,
		},
	)

	MLClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seclabel_ml_classifications_total",
			Help: "ML classification results by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seclabel_cache_hits_total",
			Help: "Cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seclabel_cache_misses_total",
			Help: "Cache misses by cache name",
		},
		[]string{"cache"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seclabel_cache_errors_total",
			Help: "Cache errors by cache name and operation",
		},
		[]string{"cache", "operation"},
	)

	WorkerPoolQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seclabel_worker_pool_queue_size",
			Help: "Tasks waiting in a worker pool queue",
		},
		[]string{"pool"},
	)

	WorkerPoolTasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seclabel_worker_pool_tasks_processed_total",
			Help: "Tasks completed by a worker pool",
		},
		[]string{"pool"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seclabel_websocket_clients",
			Help: "Connected websocket clients",
		},
	)
)
