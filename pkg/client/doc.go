// Package client provides a Go client for the timeline service API:
// timeline reads with pagination, refresh, read markers, and the
// internal event ingress used by upstream services.
package client
