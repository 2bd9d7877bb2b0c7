package source

import (
	"context"
	"fmt"
	"time"

	"github.com/sonet/timeline/pkg/graph"
	"github.com/sonet/timeline/pkg/notestore"
	"github.com/sonet/timeline/pkg/types"
)

// DiscoveryAdapter produces candidates from outside the viewer's follow
// graph: the recommended/discovery feed. Ranking decides how much of it
// actually surfaces.
type DiscoveryAdapter struct {
	graph graph.Service
	notes notestore.Store
}

// NewDiscoveryAdapter creates the discovery candidate source.
func NewDiscoveryAdapter(g graph.Service, notes notestore.Store) *DiscoveryAdapter {
	return &DiscoveryAdapter{graph: g, notes: notes}
}

func (a *DiscoveryAdapter) Name() string {
	return "discovery"
}

func (a *DiscoveryAdapter) FetchCandidates(ctx context.Context, viewerID string, since time.Time, limit int) ([]types.Candidate, error) {
	following, err := a.graph.Following(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve following set: %w", err)
	}
	followed := make(map[string]bool, len(following))
	for _, id := range following {
		followed[id] = true
	}

	// Over-fetch so the exclusions below still leave a full page.
	recent, err := a.notes.ListRecent(ctx, since, limit*2)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent notes: %w", err)
	}

	candidates := make([]types.Candidate, 0, limit)
	for _, note := range recent {
		if note.AuthorID == viewerID || followed[note.AuthorID] {
			continue
		}
		candidates = append(candidates, types.Candidate{Note: note, Source: types.SourceDiscovery})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}
