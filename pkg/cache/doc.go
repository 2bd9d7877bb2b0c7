// Package cache keeps ranked per-viewer timelines in memory so repeat
// reads and pagination do not re-run the generation pipeline.
//
// The cache is bounded two ways: a viewer-count capacity enforced by
// least-recently-read eviction, and a per-snapshot TTL. Each viewer
// carries a monotonic generation number that survives invalidation and
// eviction, so a pagination cursor minted against an old snapshot is
// detectable after any rebuild.
//
// Snapshots are copy-on-write. Incremental patches (new note, score
// change, deletion) build a replacement entry slice and swap the
// snapshot pointer under the viewer's lock, which keeps concurrent
// page reads tearing-free without a global lock on the read path.
//
// Concurrent misses for the same viewer and algorithm coalesce through
// singleflight into one pipeline run. The run executes on a detached
// context: a caller that times out abandons its wait without cancelling
// the computation the remaining waiters share.
package cache
