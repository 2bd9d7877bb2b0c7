/*
Package notestore defines the note-store collaborator boundary.

Note content, moderation state, and engagement counters are owned by an
external service; the timeline core reads them through the Store
interface and treats it as authoritative. Timeline entries carry note
IDs only, so full notes are resolved here at response time rather than
embedded in cached entries.

Two reference implementations ship with the package:

  - MemoryStore: map-backed, for tests and ephemeral deployments
  - BoltStore: BoltDB-backed, one bucket of JSON-encoded notes, for
    single-binary deployments that should survive restarts

Lookup conventions the pipeline depends on: IsRemoved treats unknown
notes as removed (fail safe), while EngagementCounts treats unknown
notes as zero-engagement (score low, don't exclude).
*/
package notestore
