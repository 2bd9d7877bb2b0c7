package ranking

import (
	"testing"
	"time"

	"github.com/sonet/timeline/pkg/config"
	"github.com/sonet/timeline/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.RankingConfig {
	return config.Default().Ranking
}

func candidate(id, author string, createdAt time.Time, likes, renotes, replies int64) types.Candidate {
	return types.Candidate{
		Note: types.Note{
			ID:        id,
			AuthorID:  author,
			CreatedAt: createdAt,
			Engagement: types.EngagementCounts{
				Likes:   likes,
				Renotes: renotes,
				Replies: replies,
			},
		},
		Source: types.SourceFollowing,
	}
}

func TestChronologicalOrder(t *testing.T) {
	now := time.Now()
	candidates := []types.Candidate{
		candidate("n2", "a", now.Add(-2*time.Hour), 0, 0, 0),
		candidate("n1", "a", now.Add(-1*time.Hour), 0, 0, 0),
		candidate("n3", "a", now.Add(-3*time.Hour), 0, 0, 0),
	}

	entries := NewChronological().Rank(now, candidates)
	require.Len(t, entries, 3)
	assert.Equal(t, "n1", entries[0].NoteID)
	assert.Equal(t, "n2", entries[1].NoteID)
	assert.Equal(t, "n3", entries[2].NoteID)
}

func TestChronologicalMicrosecondResolution(t *testing.T) {
	now := time.Now()
	ts := now.Add(-time.Hour).Truncate(time.Microsecond)
	// One microsecond apart, with IDs chosen so a false tie would flip
	// the order. The scores must stay exact in a float64.
	candidates := []types.Candidate{
		{Note: types.Note{ID: "aaa-older", AuthorID: "a", CreatedAt: ts}, Source: types.SourceFollowing},
		{Note: types.Note{ID: "zzz-newer", AuthorID: "a", CreatedAt: ts.Add(time.Microsecond)}, Source: types.SourceFollowing},
	}

	entries := NewChronological().Rank(now, candidates)
	require.Len(t, entries, 2)
	assert.Equal(t, "zzz-newer", entries[0].NoteID)
	assert.Equal(t, "aaa-older", entries[1].NoteID)
	assert.Greater(t, entries[0].Score, entries[1].Score)
}

func TestChronologicalTieBreakByNoteID(t *testing.T) {
	now := time.Now()
	ts := now.Add(-time.Hour)
	candidates := []types.Candidate{
		candidate("zeta", "a", ts, 0, 0, 0),
		candidate("alpha", "a", ts, 0, 0, 0),
		candidate("mid", "a", ts, 0, 0, 0),
	}

	entries := NewChronological().Rank(now, candidates)
	assert.Equal(t, "alpha", entries[0].NoteID)
	assert.Equal(t, "mid", entries[1].NoteID)
	assert.Equal(t, "zeta", entries[2].NoteID)
}

func TestDeterminism(t *testing.T) {
	now := time.Now()
	candidates := []types.Candidate{
		candidate("n1", "a", now.Add(-30*time.Minute), 5, 1, 0),
		candidate("n2", "b", now.Add(-2*time.Hour), 50, 10, 3),
		candidate("n3", "c", now.Add(-10*time.Minute), 0, 0, 0),
		candidate("n4", "d", now.Add(-30*time.Minute), 5, 1, 0), // same signals as n1
	}

	for _, s := range []Strategy{
		NewChronological(),
		NewEngagementWeighted(testConfig()),
		NewHybrid(testConfig()),
	} {
		first := s.Rank(now, candidates)
		second := s.Rank(now, candidates)
		assert.Equal(t, first, second, "strategy %s must be deterministic", s.Name())
	}
}

func TestTieBreakStability(t *testing.T) {
	now := time.Now()
	ts := now.Add(-time.Hour)
	// Identical signals, identical timestamps: only the note ID separates them.
	candidates := []types.Candidate{
		candidate("bbb", "x", ts, 3, 0, 0),
		candidate("aaa", "y", ts, 3, 0, 0),
	}

	s := NewEngagementWeighted(testConfig())
	for i := 0; i < 10; i++ {
		entries := s.Rank(now, candidates)
		require.Len(t, entries, 2)
		assert.Equal(t, "aaa", entries[0].NoteID)
		assert.Equal(t, "bbb", entries[1].NoteID)
	}
}

func TestEmptyCandidateSet(t *testing.T) {
	now := time.Now()
	for _, s := range []Strategy{
		NewChronological(),
		NewEngagementWeighted(testConfig()),
		NewHybrid(testConfig()),
	} {
		entries := s.Rank(now, nil)
		assert.Empty(t, entries, "strategy %s", s.Name())
	}
}

func TestEngagementPrefersEngagedContent(t *testing.T) {
	now := time.Now()
	ts := now.Add(-time.Hour)
	candidates := []types.Candidate{
		candidate("quiet", "a", ts, 0, 0, 0),
		candidate("busy", "b", ts, 40, 10, 5),
	}

	entries := NewEngagementWeighted(testConfig()).Rank(now, candidates)
	assert.Equal(t, "busy", entries[0].NoteID)
	assert.Greater(t, entries[0].Score, entries[1].Score)
}

func TestEngagementTimeDecay(t *testing.T) {
	now := time.Now()
	// Same engagement, one note a full half-life older.
	cfg := testConfig()
	candidates := []types.Candidate{
		candidate("old", "a", now.Add(-cfg.HalfLife), 10, 0, 0),
		candidate("new", "b", now, 10, 0, 0),
	}

	entries := NewEngagementWeighted(cfg).Rank(now, candidates)
	require.Equal(t, "new", entries[0].NoteID)
	assert.InDelta(t, entries[0].Score/2, entries[1].Score, 1e-9)
}

func TestMissingEngagementScoresAsZero(t *testing.T) {
	now := time.Now()
	candidates := []types.Candidate{
		candidate("none", "a", now, 0, 0, 0),
		{Note: types.Note{ID: "negative", AuthorID: "b", CreatedAt: now,
			Engagement: types.EngagementCounts{Likes: -5}}, Source: types.SourceFollowing},
	}

	entries := NewEngagementWeighted(testConfig()).Rank(now, candidates)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, 0.0, e.Score)
	}
	// Still present, ordered by tie-break.
	assert.Equal(t, "negative", entries[0].NoteID)
}

func TestHybridBlend(t *testing.T) {
	now := time.Now()
	cfg := testConfig()

	// A fresh quiet note and an older busy note. Pure chronological puts
	// the fresh note first, pure engagement the busy one; hybrid with
	// blend=1 must match chronological preference.
	fresh := candidate("fresh", "a", now.Add(-time.Minute), 0, 0, 0)
	busy := candidate("busy", "b", now.Add(-6*time.Hour), 100, 30, 10)

	cfg.HybridBlend = 1.0
	entries := NewHybrid(cfg).Rank(now, []types.Candidate{busy, fresh})
	assert.Equal(t, "fresh", entries[0].NoteID)

	cfg.HybridBlend = 0.0
	entries = NewHybrid(cfg).Rank(now, []types.Candidate{busy, fresh})
	assert.Equal(t, "busy", entries[0].NoteID)
}

func TestRegistrySelection(t *testing.T) {
	r := NewRegistry(testConfig())

	assert.Equal(t, types.AlgorithmChronological, r.Strategy(types.AlgorithmChronological).Name())
	assert.Equal(t, types.AlgorithmEngagement, r.Strategy(types.AlgorithmEngagement).Name())
	assert.Equal(t, types.AlgorithmHybrid, r.Strategy(types.AlgorithmHybrid).Name())

	// Unknown algorithms resolve to the hybrid default.
	assert.Equal(t, types.AlgorithmHybrid, r.Strategy(types.Algorithm("ml-v2")).Name())
	assert.Equal(t, types.AlgorithmHybrid, r.Strategy("").Name())
}

func TestLessComparator(t *testing.T) {
	a := types.TimelineEntry{NoteID: "a", Score: 2.0}
	b := types.TimelineEntry{NoteID: "b", Score: 1.0}
	tie := types.TimelineEntry{NoteID: "c", Score: 2.0}

	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))
	assert.True(t, Less(a, tie))  // equal scores, "a" < "c"
	assert.False(t, Less(tie, a))
}
