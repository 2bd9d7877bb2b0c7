package ranking

import (
	"time"

	"github.com/sonet/timeline/pkg/config"
	"github.com/sonet/timeline/pkg/types"
)

// Hybrid blends recency and engagement: a linear mix of the
// chronological signal (expressed as the same time-decay factor, so it
// is comparable with the engagement score) and the engagement-weighted
// score. The blend coefficient is configuration; hybrid is the default
// algorithm when a request does not specify one.
type Hybrid struct {
	cfg        config.RankingConfig
	engagement *EngagementWeighted
}

// NewHybrid creates the hybrid strategy from the configured blend.
func NewHybrid(cfg config.RankingConfig) *Hybrid {
	return &Hybrid{cfg: cfg, engagement: NewEngagementWeighted(cfg)}
}

func (s *Hybrid) Name() types.Algorithm {
	return types.AlgorithmHybrid
}

func (s *Hybrid) Rank(now time.Time, candidates []types.Candidate) []types.TimelineEntry {
	entries := make([]types.TimelineEntry, 0, len(candidates))
	for _, c := range candidates {
		recency := decay(now.Sub(c.Note.CreatedAt), s.cfg.HalfLife)
		engagement := s.engagement.score(now, c.Note)
		score := s.cfg.HybridBlend*recency + (1-s.cfg.HybridBlend)*engagement

		entries = append(entries, types.TimelineEntry{
			NoteID:     c.Note.ID,
			AuthorID:   c.Note.AuthorID,
			Score:      score,
			Reason:     types.ReasonHybrid,
			InsertedAt: now,
		})
	}
	SortEntries(entries)
	return entries
}
