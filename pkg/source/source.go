package source

import (
	"context"
	"time"

	"github.com/sonet/timeline/pkg/types"
)

// Adapter returns unranked candidate posts for a viewer from one
// upstream content source. Adapters are collaborators: the timeline
// core only depends on this contract, and every call is independently
// timeout-bounded by the controller.
type Adapter interface {
	// Name identifies the adapter in logs, metrics, and degradation flags.
	Name() string

	// FetchCandidates returns candidates created after since, newest
	// first, up to limit. A failed or slow adapter degrades the request
	// rather than failing it.
	FetchCandidates(ctx context.Context, viewerID string, since time.Time, limit int) ([]types.Candidate, error)
}
