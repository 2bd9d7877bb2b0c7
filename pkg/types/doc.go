/*
Package types defines the core data structures used throughout the
timeline service.

This package contains the fundamental types of the timeline domain model:
notes, candidates, ranked timeline entries, requests, pages, and the
enums that select ranking algorithms and tag candidate sources. These
types are used by all other packages for pipeline plumbing, caching, and
API responses.

# Architecture

The types package is the foundation of the timeline data model. It
defines:

  - Content primitives (Note, EngagementCounts, EngagementDelta)
  - Pipeline primitives (Candidate, Source)
  - Ranking output (TimelineEntry, RankReason)
  - Request/response modeling (TimelineRequest, TimelinePage, Pagination)
  - Degradation flags surfaced in page metadata

All types are designed to be:
  - Serializable (JSON for the HTTP gateway and the bolt-backed store)
  - Immutable where it matters (TimelineEntry never changes in place)
  - Self-documenting (clear field names and comments)
  - ID-based (entries reference notes and authors by ID only, full
    objects are resolved through the note store collaborator)

# Ordering Invariant

Timeline entries are totally ordered by (Score desc, NoteID asc). For
chronological timelines the score is the creation time expressed as a
monotonically comparable value, so the same comparator yields newest
first. The tie-break on note ID is mandatory: it makes pagination
cursors deterministic, so a page walk never skips or duplicates an
entry even when scores collide.

# Degradation Flags

Partial failures inside the pipeline degrade rather than fail:

  - adapter_timeout / adapter_unavailable: a candidate source was slow
    or down and its candidates were omitted
  - filter_degraded: block/mute data was stale and the filter applied
    its grace-window policy
  - ranking_fallback: the selected strategy failed and chronological
    ordering was used for this request
  - cache_bypass: the cache was unavailable and the pipeline ran fresh
  - deadline_partial: the overall request deadline expired and a
    best-effort partial result was returned

Clients always receive a best-effort page; only total backend loss
surfaces as a service error.
*/
package types
