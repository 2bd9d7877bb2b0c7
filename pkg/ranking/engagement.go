package ranking

import (
	"time"

	"github.com/sonet/timeline/pkg/config"
	"github.com/sonet/timeline/pkg/types"
)

// EngagementWeighted scores candidates by a weighted sum of engagement
// signals, normalized into [0,1) and multiplied by an exponential
// time-decay factor so older high-engagement posts don't permanently
// dominate. Weights and half-life come from configuration.
type EngagementWeighted struct {
	cfg config.RankingConfig
}

// NewEngagementWeighted creates the engagement strategy from the
// configured weights.
func NewEngagementWeighted(cfg config.RankingConfig) *EngagementWeighted {
	return &EngagementWeighted{cfg: cfg}
}

func (s *EngagementWeighted) Name() types.Algorithm {
	return types.AlgorithmEngagement
}

func (s *EngagementWeighted) Rank(now time.Time, candidates []types.Candidate) []types.TimelineEntry {
	entries := make([]types.TimelineEntry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, types.TimelineEntry{
			NoteID:     c.Note.ID,
			AuthorID:   c.Note.AuthorID,
			Score:      s.score(now, c.Note),
			Reason:     types.ReasonEngagement,
			InsertedAt: now,
		})
	}
	SortEntries(entries)
	return entries
}

// score combines the normalized engagement signal with time decay.
// Missing or malformed counts behave as zero engagement; the candidate
// still scores, it just scores low.
func (s *EngagementWeighted) score(now time.Time, note types.Note) float64 {
	weighted := float64(note.Engagement.Likes)*s.cfg.LikeWeight +
		float64(note.Engagement.Renotes)*s.cfg.RenoteWeight +
		float64(note.Engagement.Replies)*s.cfg.ReplyWeight
	if weighted < 0 {
		weighted = 0
	}

	// Saturating normalization: 0 engagement -> 0, norm -> 0.5, -> 1.
	normalized := weighted / (weighted + s.cfg.EngagementNorm)

	return normalized * decay(now.Sub(note.CreatedAt), s.cfg.HalfLife)
}
