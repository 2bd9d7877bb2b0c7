package source

import (
	"context"
	"fmt"
	"time"

	"github.com/sonet/timeline/pkg/graph"
	"github.com/sonet/timeline/pkg/notestore"
	"github.com/sonet/timeline/pkg/types"
)

// FollowingAdapter produces candidates from the accounts the viewer
// follows: the graph-based follow feed.
type FollowingAdapter struct {
	graph graph.Service
	notes notestore.Store
}

// NewFollowingAdapter creates the follow-feed candidate source.
func NewFollowingAdapter(g graph.Service, notes notestore.Store) *FollowingAdapter {
	return &FollowingAdapter{graph: g, notes: notes}
}

func (a *FollowingAdapter) Name() string {
	return "following"
}

func (a *FollowingAdapter) FetchCandidates(ctx context.Context, viewerID string, since time.Time, limit int) ([]types.Candidate, error) {
	following, err := a.graph.Following(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve following set: %w", err)
	}
	if len(following) == 0 {
		return nil, nil
	}

	notes, err := a.notes.ListByAuthors(ctx, following, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	candidates := make([]types.Candidate, 0, len(notes))
	for _, note := range notes {
		candidates = append(candidates, types.Candidate{Note: note, Source: types.SourceFollowing})
	}
	return candidates, nil
}
