package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	TimelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeline_requests_total",
			Help: "Total number of timeline requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	TimelineRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timeline_request_duration_seconds",
			Help:    "Timeline request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Pipeline metrics
	PipelineRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_pipeline_runs_total",
			Help: "Total number of full merge+rank pipeline executions",
		},
	)

	PipelineCoalesced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_pipeline_coalesced_total",
			Help: "Total number of requests that waited on an in-flight pipeline run instead of starting their own",
		},
	)

	AdapterFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeline_adapter_failures_total",
			Help: "Total number of candidate source failures by adapter and reason",
		},
		[]string{"adapter", "reason"},
	)

	RankingFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_ranking_fallbacks_total",
			Help: "Total number of requests that fell back to chronological ranking",
		},
	)

	// Cache metrics
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_cache_hits_total",
			Help: "Total number of timeline cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_cache_misses_total",
			Help: "Total number of timeline cache misses",
		},
	)

	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeline_cache_evictions_total",
			Help: "Total number of cache evictions by reason (lru, ttl, invalidate)",
		},
		[]string{"reason"},
	)

	CachePatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_cache_patches_total",
			Help: "Total number of incremental cache patches applied",
		},
	)

	CachedViewers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "timeline_cached_viewers",
			Help: "Number of viewers with a cached timeline",
		},
	)

	// Fanout metrics
	FanoutEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeline_fanout_events_total",
			Help: "Total number of fanout events accepted by type",
		},
		[]string{"type"},
	)

	FanoutDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_fanout_dropped_total",
			Help: "Total number of fanout events dropped because the queue was full",
		},
	)

	FanoutPatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_fanout_patches_total",
			Help: "Total number of follower timelines patched by fanout",
		},
	)

	LiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "timeline_live_subscribers",
			Help: "Number of connected real-time timeline subscribers",
		},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_rate_limited_total",
			Help: "Total number of requests rejected by the per-viewer rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(TimelineRequestsTotal)
	prometheus.MustRegister(TimelineRequestDuration)
	prometheus.MustRegister(PipelineRuns)
	prometheus.MustRegister(PipelineCoalesced)
	prometheus.MustRegister(AdapterFailures)
	prometheus.MustRegister(RankingFallbacks)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CacheEvictions)
	prometheus.MustRegister(CachePatches)
	prometheus.MustRegister(CachedViewers)
	prometheus.MustRegister(FanoutEvents)
	prometheus.MustRegister(FanoutDropped)
	prometheus.MustRegister(FanoutPatches)
	prometheus.MustRegister(LiveSubscribers)
	prometheus.MustRegister(RateLimited)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
