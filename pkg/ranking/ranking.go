package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/sonet/timeline/pkg/config"
	"github.com/sonet/timeline/pkg/types"
)

// Strategy scores and orders candidates into timeline entries. A
// strategy must be deterministic: identical candidates, identical now,
// identical output, byte for byte. Anything satisfying this contract
// can replace the built-in strategies, including an external ML scorer.
type Strategy interface {
	// Name returns the algorithm this strategy implements.
	Name() types.Algorithm

	// Rank scores the candidates and returns entries ordered by
	// (score desc, note ID asc). An empty candidate set yields an empty
	// result, never an error.
	Rank(now time.Time, candidates []types.Candidate) []types.TimelineEntry
}

// Registry holds the available strategies and resolves the one
// requested by a timeline request.
type Registry struct {
	strategies map[types.Algorithm]Strategy
	fallback   Strategy
}

// NewRegistry builds the built-in strategy set from the ranking
// configuration. Hybrid is the default when a request does not name a
// valid algorithm.
func NewRegistry(cfg config.RankingConfig) *Registry {
	chrono := NewChronological()
	engagement := NewEngagementWeighted(cfg)
	hybrid := NewHybrid(cfg)

	r := &Registry{
		strategies: map[types.Algorithm]Strategy{
			types.AlgorithmChronological: chrono,
			types.AlgorithmEngagement:    engagement,
			types.AlgorithmHybrid:        hybrid,
		},
		fallback: hybrid,
	}
	return r
}

// Register adds or replaces a strategy, keyed by its name. This is the
// seam for plugging in an external scorer.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Strategy returns the strategy for the algorithm, or the hybrid
// default for unknown values.
func (r *Registry) Strategy(a types.Algorithm) Strategy {
	if s, ok := r.strategies[a]; ok {
		return s
	}
	return r.fallback
}

// Chronological returns the chronological strategy directly; the
// controller uses it as the fallback when a configured strategy fails.
func (r *Registry) Chronological() Strategy {
	return r.strategies[types.AlgorithmChronological]
}

// Less reports whether a sorts before b under the timeline ordering
// invariant: score descending, note ID ascending as the tie-break. The
// tie-break is mandatory so that cursors resume deterministically and
// never skip or duplicate an entry across pages.
func Less(a, b types.TimelineEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.NoteID < b.NoteID
}

// SortEntries orders entries in place by the timeline ordering invariant.
func SortEntries(entries []types.TimelineEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// decay returns the exponential time-decay factor for a note of the
// given age: 1.0 at zero age, 0.5 at one half-life.
func decay(age time.Duration, halfLife time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	hours := age.Hours()
	return math.Exp(-hours * math.Ln2 / halfLife.Hours())
}
