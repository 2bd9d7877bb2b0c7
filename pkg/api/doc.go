// Package api exposes the timeline service over HTTP.
//
// Read routes under /v1 serve timeline pages, refresh, read markers,
// and websocket subscriptions to live timeline changes. Routes under
// /internal/events ingest write-side events (new notes, engagement
// changes, follows, deletions) from upstream services and hand them to
// the fanout notifier. /healthz and /metrics serve operations.
package api
