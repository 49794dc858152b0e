package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tunehub",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tunehub",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	AdapterRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tunehub",
		Name:      "adapter_requests_total",
		Help:      "Total source adapter searches by adapter name and result status.",
	}, []string{"adapter", "status"})

	AdapterRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tunehub",
		Name:      "adapter_request_duration_seconds",
		Help:      "Source adapter search duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"adapter"})

	AdapterAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tunehub",
		Name:      "adapter_available",
		Help:      "Whether an adapter is available (1) or blocked by circuit breaker (0).",
	}, []string{"adapter"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tunehub",
		Name:      "search_cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tunehub",
		Name:      "search_cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	ResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tunehub",
		Name:      "resolve_total",
		Help:      "Resolution outcomes by source and outcome (resolved, unresolvable, error).",
	}, []string{"source", "outcome"})

	IngestJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tunehub",
		Name:      "ingest_jobs_total",
		Help:      "Ingest job transitions by outcome (submitted, completed, retried, failed).",
	}, []string{"outcome"})

	IngestAttemptDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tunehub",
		Name:      "ingest_attempt_duration_seconds",
		Help:      "Duration of a single ingest attempt in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	DownloadedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tunehub",
		Name:      "ingest_downloaded_bytes_total",
		Help:      "Total bytes written to the staging area.",
	})

	RelocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tunehub",
		Name:      "ingest_relocations_total",
		Help:      "Staging to library relocations by mode (rename, copy).",
	}, []string{"mode"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AdapterRequestsTotal,
		AdapterRequestDuration,
		AdapterAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		ResolveTotal,
		IngestJobsTotal,
		IngestAttemptDuration,
		DownloadedBytesTotal,
		RelocationsTotal,
	)
}
