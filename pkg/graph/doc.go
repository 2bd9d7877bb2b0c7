/*
Package graph defines the social-graph collaborator boundary.

Follow, block, and mute relationships are stored and served by an
external service; the timeline core consumes them through the Service
interface only. The package also ships MemoryGraph, an in-memory
implementation used for single-binary deployments and tests.

Followers listings are paginated by design: the fanout path walks a
popular author's followers page by page instead of loading the full set.
*/
package graph
