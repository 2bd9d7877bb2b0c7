// Package fanout pushes write-side events into cached timelines.
//
// The Notifier consumes note publications, engagement changes, note
// deletions, and follow changes from a bounded queue and applies them
// as incremental patches to the affected viewers' cached snapshots,
// instead of invalidating them wholesale. Fanout is asynchronous and
// best effort: when the queue overflows the event is dropped and the
// affected timelines converge at their next TTL recompute. Read
// latency is never held hostage to write volume.
//
// The Broker distributes the resulting per-viewer change events to live
// subscribers (the websocket endpoint) with per-subscriber buffers and
// non-blocking delivery.
package fanout
