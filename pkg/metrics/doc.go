/*
Package metrics exposes Prometheus metrics for the timeline service.

All collectors are package-level variables registered in init() and
incremented directly by the owning components: the controller records
request counts and latency, the cache its hit/miss/eviction counters,
and the fanout notifier its event and patch counters.

# Metric Groups

Request:
  - timeline_requests_total{endpoint,status}
  - timeline_request_duration_seconds{endpoint}
  - timeline_rate_limited_total

Pipeline:
  - timeline_pipeline_runs_total: full merge+rank executions; together
    with timeline_pipeline_coalesced_total this makes request
    coalescing observable (K concurrent misses should add 1 run and
    K-1 coalesced waits)
  - timeline_adapter_failures_total{adapter,reason}
  - timeline_ranking_fallbacks_total

Cache:
  - timeline_cache_hits_total / timeline_cache_misses_total
  - timeline_cache_evictions_total{reason}: lru, ttl, invalidate
  - timeline_cache_patches_total
  - timeline_cached_viewers

Fanout:
  - timeline_fanout_events_total{type}
  - timeline_fanout_dropped_total: bounded-queue overflow, the
    backpressure signal for the write path
  - timeline_fanout_patches_total
  - timeline_live_subscribers

# Serving

Handler() returns the promhttp handler; the API server mounts it at
/metrics.
*/
package metrics
