package notestore

import (
	"context"
	"errors"
	"time"

	"github.com/sonet/timeline/pkg/types"
)

// ErrNotFound is returned when a note does not exist.
var ErrNotFound = errors.New("note not found")

// Store is the note-store collaborator boundary. Note content and its
// moderation pipeline live outside the timeline core; the core reads
// notes, removal flags, and engagement counters through this interface.
// The write operations exist for the reference implementations used by
// the daemon and tests.
type Store interface {
	// Get returns the note by ID, or ErrNotFound.
	Get(ctx context.Context, noteID string) (*types.Note, error)

	// IsRemoved reports whether moderation has removed the note.
	// Unknown notes count as removed.
	IsRemoved(ctx context.Context, noteID string) (bool, error)

	// EngagementCounts returns the current engagement counters.
	// Unknown notes return zero counts, not an error: candidates with
	// missing engagement data are scored as zero-engagement.
	EngagementCounts(ctx context.Context, noteID string) (types.EngagementCounts, error)

	// ListByAuthors returns notes authored by any of the given authors
	// created after since, newest first, up to limit.
	ListByAuthors(ctx context.Context, authorIDs []string, since time.Time, limit int) ([]types.Note, error)

	// ListRecent returns notes created after since, newest first, up to
	// limit. Backs the discovery feed.
	ListRecent(ctx context.Context, since time.Time, limit int) ([]types.Note, error)

	// Put creates or replaces a note.
	Put(ctx context.Context, note *types.Note) error

	// MarkRemoved flags a note as removed by moderation.
	MarkRemoved(ctx context.Context, noteID string) error

	// ApplyEngagement adds a delta to the note's counters and returns
	// the updated counts. Counters never go below zero.
	ApplyEngagement(ctx context.Context, noteID string, delta types.EngagementDelta) (types.EngagementCounts, error)

	// Close releases underlying resources.
	Close() error
}

func clampCounts(c types.EngagementCounts) types.EngagementCounts {
	if c.Likes < 0 {
		c.Likes = 0
	}
	if c.Renotes < 0 {
		c.Renotes = 0
	}
	if c.Replies < 0 {
		c.Replies = 0
	}
	return c
}
