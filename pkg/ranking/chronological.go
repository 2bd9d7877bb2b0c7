package ranking

import (
	"time"

	"github.com/sonet/timeline/pkg/types"
)

// Chronological orders candidates newest first. The score is the
// creation time in microseconds since the epoch, which keeps the shared
// (score desc, note ID asc) comparator equivalent to
// (created_at desc, note ID asc). Nanoseconds would overflow the
// float64 mantissa and quantize nearby timestamps into false ties;
// microsecond counts stay exact until the year 2255.
type Chronological struct{}

// NewChronological creates the chronological baseline strategy.
func NewChronological() *Chronological {
	return &Chronological{}
}

func (s *Chronological) Name() types.Algorithm {
	return types.AlgorithmChronological
}

func (s *Chronological) Rank(now time.Time, candidates []types.Candidate) []types.TimelineEntry {
	entries := make([]types.TimelineEntry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, types.TimelineEntry{
			NoteID:     c.Note.ID,
			AuthorID:   c.Note.AuthorID,
			Score:      float64(c.Note.CreatedAt.UnixMicro()),
			Reason:     types.ReasonChronological,
			InsertedAt: now,
		})
	}
	SortEntries(entries)
	return entries
}
