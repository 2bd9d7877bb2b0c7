package filter

import (
	"context"
	"sync"
	"time"

	"github.com/sonet/timeline/pkg/graph"
	"github.com/sonet/timeline/pkg/log"
	"github.com/sonet/timeline/pkg/notestore"
	"github.com/sonet/timeline/pkg/types"
)

// Filter removes candidates the viewer must not (blocked or muted
// authors, deleted notes) or should not (recently delivered notes) see.
//
// Block and mute lookups go to the social graph. When the graph is
// unreachable the filter falls back to its last observed verdict for
// the pair, provided the observation is within the grace window: a
// fresh "blocked" verdict still excludes the author even while the
// graph is down. Pairs with no usable verdict pass through and the
// result is flagged degraded, never failed.
type Filter struct {
	graph graph.Service
	notes notestore.Store
	seen  *SeenStore
	grace time.Duration

	mu       sync.Mutex
	verdicts map[string]blockVerdict
}

type blockVerdict struct {
	blocked    bool
	observedAt time.Time
}

// New creates a filter over the given collaborators.
func New(g graph.Service, notes notestore.Store, seen *SeenStore, grace time.Duration) *Filter {
	return &Filter{
		graph:    g,
		notes:    notes,
		seen:     seen,
		grace:    grace,
		verdicts: make(map[string]blockVerdict),
	}
}

// Apply filters the candidate set for the viewer and reports whether
// any visibility decision was made on stale data. suppressSeen extends
// filtering to notes inside the viewer's recently-delivered window; it
// is set on refresh recomputes and left off for first loads, where the
// cached page walk already provides continuity.
func (f *Filter) Apply(ctx context.Context, viewerID string, candidates []types.Candidate, suppressSeen bool) ([]types.Candidate, bool) {
	if len(candidates) == 0 {
		return candidates, false
	}

	out := make([]types.Candidate, 0, len(candidates))
	degraded := false
	for _, c := range candidates {
		if c.Note.Removed || f.removed(ctx, c.Note.ID) {
			continue
		}
		if suppressSeen && f.seen != nil && f.seen.Seen(viewerID, c.Note.ID) {
			continue
		}
		blocked, stale := f.blockedOrMuted(ctx, viewerID, c.Note.AuthorID)
		if stale {
			degraded = true
		}
		if blocked {
			continue
		}
		out = append(out, c)
	}
	return out, degraded
}

// removed treats store errors as "removed": a note whose state is
// unknown is never shown.
func (f *Filter) removed(ctx context.Context, noteID string) bool {
	removed, err := f.notes.IsRemoved(ctx, noteID)
	if err != nil {
		log.Debug().Err(err).Str("note_id", noteID).Msg("note state lookup failed, excluding")
		return true
	}
	return removed
}

func (f *Filter) blockedOrMuted(ctx context.Context, viewerID, authorID string) (blocked, stale bool) {
	key := viewerID + "|" + authorID

	verdict, err := f.graph.IsBlockedOrMuted(ctx, viewerID, authorID)
	if err == nil {
		f.mu.Lock()
		f.verdicts[key] = blockVerdict{blocked: verdict, observedAt: time.Now()}
		f.mu.Unlock()
		return verdict, false
	}

	f.mu.Lock()
	cached, ok := f.verdicts[key]
	f.mu.Unlock()

	if ok && time.Since(cached.observedAt) <= f.grace {
		return cached.blocked, true
	}

	log.Warn().Err(err).
		Str("viewer_id", viewerID).
		Str("author_id", authorID).
		Msg("block lookup failed with no usable cached verdict, allowing")
	return false, true
}
