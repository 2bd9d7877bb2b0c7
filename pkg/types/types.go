package types

import (
	"time"
)

// Algorithm selects the ranking strategy used to order a timeline.
type Algorithm string

const (
	AlgorithmChronological Algorithm = "chronological"
	AlgorithmEngagement    Algorithm = "engagement"
	AlgorithmHybrid        Algorithm = "hybrid"
)

// Valid reports whether the algorithm is one of the known strategies.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmChronological, AlgorithmEngagement, AlgorithmHybrid:
		return true
	}
	return false
}

// ScoreSensitive reports whether entry scores under this algorithm depend
// on engagement counts. Chronological scores never change after creation,
// so engagement deltas can be ignored for chronological timelines.
func (a Algorithm) ScoreSensitive() bool {
	return a == AlgorithmEngagement || a == AlgorithmHybrid
}

// RankReason records why an entry was placed at its position.
type RankReason string

const (
	ReasonChronological RankReason = "chronological"
	ReasonEngagement    RankReason = "engagement"
	ReasonHybrid        RankReason = "hybrid"
	ReasonFanout        RankReason = "fanout"
)

// Source identifies which candidate adapter produced a candidate.
type Source string

const (
	SourceFollowing Source = "following"
	SourceDiscovery Source = "discovery"
)

// Degradation flags surfaced in page metadata. Partial failures are
// recovered locally and reported through these flags, never as hard errors.
const (
	DegradedAdapterTimeout     = "adapter_timeout"
	DegradedAdapterUnavailable = "adapter_unavailable"
	DegradedFilter             = "filter_degraded"
	DegradedRankingFallback    = "ranking_fallback"
	DegradedCacheBypass        = "cache_bypass"
	DegradedDeadline           = "deadline_partial"
)

// EngagementCounts holds the engagement counters for a note.
type EngagementCounts struct {
	Likes   int64 `json:"likes"`
	Renotes int64 `json:"renotes"`
	Replies int64 `json:"replies"`
}

// Total returns the sum of all engagement signals.
func (e EngagementCounts) Total() int64 {
	return e.Likes + e.Renotes + e.Replies
}

// EngagementDelta is an increment (or decrement) applied to a note's
// engagement counters by the fanout ingress.
type EngagementDelta struct {
	Likes   int64 `json:"likes"`
	Renotes int64 `json:"renotes"`
	Replies int64 `json:"replies"`
}

// Note is a post as seen by the timeline core. The core stores IDs in
// timeline entries and resolves full notes through the note store
// collaborator only when needed.
type Note struct {
	ID         string           `json:"id"`
	AuthorID   string           `json:"author_id"`
	Text       string           `json:"text"`
	CreatedAt  time.Time        `json:"created_at"`
	IsReply    bool             `json:"is_reply"`
	IsRenote   bool             `json:"is_renote"`
	Removed    bool             `json:"removed"`
	Engagement EngagementCounts `json:"engagement"`
}

// Candidate is an unranked post eligible for a viewer's timeline,
// tagged with the source that produced it.
type Candidate struct {
	Note   Note   `json:"note"`
	Source Source `json:"source"`
}

// TimelineEntry is one ranked slot in a computed timeline. Entries are
// immutable once produced for a given computation; the cache replaces
// whole entry slices rather than mutating them in place.
type TimelineEntry struct {
	NoteID     string     `json:"note_id"`
	AuthorID   string     `json:"author_id"`
	Score      float64    `json:"score"`
	Reason     RankReason `json:"reason"`
	InsertedAt time.Time  `json:"inserted_at"`
}

// Pagination carries the client's paging parameters. Limit is clamped
// server-side; Cursor is opaque to clients.
type Pagination struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

// TimelineRequest describes one timeline read.
type TimelineRequest struct {
	ViewerID       string     `json:"viewer_id"`
	Algorithm      Algorithm  `json:"algorithm"`
	Pagination     Pagination `json:"pagination"`
	IncludeReplies bool       `json:"include_replies"`
	IncludeRenotes bool       `json:"include_renotes"`
}

// PageMetadata carries per-response context: cache behavior, degradation
// flags, and the generation of the cached sequence this page was cut from.
type PageMetadata struct {
	Algorithm        Algorithm `json:"algorithm"`
	CacheHit         bool      `json:"cache_hit"`
	Generation       uint64    `json:"generation"`
	Degraded         []string  `json:"degraded,omitempty"`
	NewSinceLastRead int       `json:"new_since_last_read"`
}

// TimelinePage is one page of a ranked timeline. NextCursor is nil when
// the sequence is exhausted.
type TimelinePage struct {
	Entries    []TimelineEntry `json:"entries"`
	NextCursor *string         `json:"next_cursor"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	Metadata   PageMetadata    `json:"metadata"`
}
