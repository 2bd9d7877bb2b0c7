package graph

import (
	"context"
)

// Service is the read API over the social-graph collaborator. Follow,
// block, and mute storage live outside the timeline core; the core only
// consumes these lookups.
type Service interface {
	// IsBlockedOrMuted reports whether the viewer has blocked or muted
	// the author (or is blocked by the author).
	IsBlockedOrMuted(ctx context.Context, viewerID, authorID string) (bool, error)

	// Following returns the IDs of accounts the viewer follows.
	Following(ctx context.Context, viewerID string) ([]string, error)

	// Followers returns one page of the author's followers together with
	// the cursor for the next page. An empty next cursor means the listing
	// is exhausted. High-follower accounts are read page by page so the
	// fanout path never materializes the whole follower set at once.
	Followers(ctx context.Context, authorID, cursor string, limit int) ([]string, string, error)
}
