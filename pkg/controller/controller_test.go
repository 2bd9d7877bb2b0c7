package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonet/timeline/pkg/cache"
	"github.com/sonet/timeline/pkg/config"
	"github.com/sonet/timeline/pkg/fanout"
	"github.com/sonet/timeline/pkg/filter"
	"github.com/sonet/timeline/pkg/graph"
	"github.com/sonet/timeline/pkg/notestore"
	"github.com/sonet/timeline/pkg/ranking"
	"github.com/sonet/timeline/pkg/source"
	"github.com/sonet/timeline/pkg/types"
)

type fixture struct {
	ctrl  *Controller
	graph *graph.MemoryGraph
	notes *notestore.MemoryStore
	cache *cache.Cache
	cfg   *config.Config
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.RequestsPerMinute = 0
	for _, m := range mutate {
		m(cfg)
	}

	g := graph.NewMemoryGraph()
	notes := notestore.NewMemoryStore()
	seen := filter.NewSeenStore(cfg.Filter.SeenWindow)
	f := filter.New(g, notes, seen, cfg.Filter.GraceWindow)
	registry := ranking.NewRegistry(cfg.Ranking)
	c := cache.New(cfg.Cache.MaxViewers, cfg.Cache.TTL)
	c.SetEnabled(!cfg.Cache.Disabled)

	adapters := []source.Adapter{
		source.NewFollowingAdapter(g, notes),
		source.NewDiscoveryAdapter(g, notes),
	}
	ctrl := New(cfg, adapters, f, registry, c, seen, notes)
	return &fixture{ctrl: ctrl, graph: g, notes: notes, cache: c, cfg: cfg}
}

func (fx *fixture) seedNotes(t *testing.T, authorID string, count int, base time.Time) []string {
	t.Helper()
	ids := make([]string, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%s-note-%03d", authorID, i)
		ids[i] = id
		err := fx.notes.Put(context.Background(), &types.Note{
			ID:        id,
			AuthorID:  authorID,
			Text:      fmt.Sprintf("note %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	return ids
}

func TestEmptyViewerGetsEmptySuccessfulPage(t *testing.T) {
	fx := newFixture(t)

	page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
		ViewerID:  "loner",
		Algorithm: types.AlgorithmHybrid,
	})
	require.NoError(t, err)
	assert.True(t, page.Success)
	assert.Empty(t, page.Entries)
	assert.Nil(t, page.NextCursor)
}

func TestChronologicalPaginationWalk(t *testing.T) {
	fx := newFixture(t)
	fx.graph.Follow("viewer", "author")
	fx.seedNotes(t, "author", 25, time.Now().Add(-time.Hour))

	var collected []string
	cursor := ""
	pages := 0
	for {
		page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
			ViewerID:   "viewer",
			Algorithm:  types.AlgorithmChronological,
			Pagination: types.Pagination{Limit: 10, Cursor: cursor},
		})
		require.NoError(t, err)
		require.True(t, page.Success)
		pages++
		for _, e := range page.Entries {
			collected = append(collected, e.NoteID)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}

	assert.Equal(t, 3, pages)
	require.Len(t, collected, 25)
	unique := make(map[string]struct{}, len(collected))
	for _, id := range collected {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, 25, "pagination repeated an entry")
}

func TestPaginationWalkBoundarySizes(t *testing.T) {
	for _, total := range []int{0, 1, 9, 10, 11, 30} {
		t.Run(fmt.Sprintf("total=%d", total), func(t *testing.T) {
			fx := newFixture(t)
			fx.graph.Follow("viewer", "author")
			fx.seedNotes(t, "author", total, time.Now().Add(-time.Hour))

			count := 0
			cursor := ""
			for {
				page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
					ViewerID:   "viewer",
					Algorithm:  types.AlgorithmChronological,
					Pagination: types.Pagination{Limit: 10, Cursor: cursor},
				})
				require.NoError(t, err)
				require.True(t, page.Success)
				count += len(page.Entries)
				if page.NextCursor == nil {
					break
				}
				cursor = *page.NextCursor
			}
			assert.Equal(t, total, count)
		})
	}
}

func TestOrderingInvariantHolds(t *testing.T) {
	fx := newFixture(t)
	fx.graph.Follow("viewer", "author")
	fx.seedNotes(t, "author", 40, time.Now().Add(-2*time.Hour))

	for _, algorithm := range []types.Algorithm{types.AlgorithmChronological, types.AlgorithmEngagement, types.AlgorithmHybrid} {
		page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
			ViewerID:   "viewer",
			Algorithm:  algorithm,
			Pagination: types.Pagination{Limit: 40},
		})
		require.NoError(t, err)
		for i := 1; i < len(page.Entries); i++ {
			prev, cur := page.Entries[i-1], page.Entries[i]
			ordered := prev.Score > cur.Score || (prev.Score == cur.Score && prev.NoteID < cur.NoteID)
			assert.True(t, ordered, "%s: entry %d out of order", algorithm, i)
		}
	}
}

func TestInvalidCursorReturnsFailedPage(t *testing.T) {
	fx := newFixture(t)

	page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
		ViewerID:   "viewer",
		Pagination: types.Pagination{Cursor: "garbage!!"},
	})
	require.NoError(t, err)
	assert.False(t, page.Success)
	assert.Equal(t, "invalid cursor", page.Error)
	assert.Empty(t, page.Entries)
}

func TestCursorFromDifferentAlgorithmRejected(t *testing.T) {
	fx := newFixture(t)
	fx.graph.Follow("viewer", "author")
	fx.seedNotes(t, "author", 15, time.Now().Add(-time.Hour))

	page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
		ViewerID:   "viewer",
		Algorithm:  types.AlgorithmChronological,
		Pagination: types.Pagination{Limit: 10},
	})
	require.NoError(t, err)
	require.NotNil(t, page.NextCursor)

	page, err = fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
		ViewerID:   "viewer",
		Algorithm:  types.AlgorithmHybrid,
		Pagination: types.Pagination{Limit: 10, Cursor: *page.NextCursor},
	})
	require.NoError(t, err)
	assert.False(t, page.Success)
}

func TestLimitClamping(t *testing.T) {
	fx := newFixture(t)
	fx.graph.Follow("viewer", "author")
	fx.seedNotes(t, "author", 150, time.Now().Add(-3*time.Hour))

	page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
		ViewerID:   "viewer",
		Algorithm:  types.AlgorithmChronological,
		Pagination: types.Pagination{Limit: 10000},
	})
	require.NoError(t, err)
	assert.Len(t, page.Entries, maxPageLimit)

	page, err = fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
		ViewerID:  "viewer2",
		Algorithm: types.AlgorithmChronological,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(page.Entries), defaultPageLimit)
}

func TestUnknownAlgorithmFallsBackToHybrid(t *testing.T) {
	fx := newFixture(t)

	page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
		ViewerID:  "viewer",
		Algorithm: types.Algorithm("bogus"),
	})
	require.NoError(t, err)
	assert.Equal(t, types.AlgorithmHybrid, page.Metadata.Algorithm)
}

func TestRepliesAndRenotesExcludedByDefault(t *testing.T) {
	fx := newFixture(t)
	fx.graph.Follow("viewer", "author")
	now := time.Now()
	require.NoError(t, fx.notes.Put(context.Background(), &types.Note{ID: "plain", AuthorID: "author", CreatedAt: now}))
	require.NoError(t, fx.notes.Put(context.Background(), &types.Note{ID: "reply", AuthorID: "author", CreatedAt: now, IsReply: true}))
	require.NoError(t, fx.notes.Put(context.Background(), &types.Note{ID: "renote", AuthorID: "author", CreatedAt: now, IsRenote: true}))

	page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
		ViewerID:  "viewer",
		Algorithm: types.AlgorithmChronological,
	})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "plain", page.Entries[0].NoteID)

	fx.cache.Invalidate("viewer")
	page, err = fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
		ViewerID:       "viewer",
		Algorithm:      types.AlgorithmChronological,
		IncludeReplies: true,
		IncludeRenotes: true,
	})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 3)
}

func TestBlockedAuthorExcludedFromTimeline(t *testing.T) {
	fx := newFixture(t)
	fx.graph.Follow("viewer", "friend")
	fx.graph.Follow("viewer", "enemy")
	fx.graph.Block("viewer", "enemy")
	fx.seedNotes(t, "friend", 3, time.Now().Add(-time.Hour))
	fx.seedNotes(t, "enemy", 3, time.Now().Add(-time.Hour))

	page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{
		ViewerID:  "viewer",
		Algorithm: types.AlgorithmChronological,
	})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	for _, e := range page.Entries {
		assert.Equal(t, "friend", e.AuthorID)
	}
}

func TestSecondReadHitsCache(t *testing.T) {
	fx := newFixture(t)
	fx.graph.Follow("viewer", "author")
	fx.seedNotes(t, "author", 5, time.Now().Add(-time.Hour))

	req := types.TimelineRequest{ViewerID: "viewer", Algorithm: types.AlgorithmHybrid}

	page, err := fx.ctrl.GetTimeline(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, page.Metadata.CacheHit)

	page, err = fx.ctrl.GetTimeline(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, page.Metadata.CacheHit)
	assert.Equal(t, uint64(1), page.Metadata.Generation)
}

func TestDisabledCacheFlagsBypass(t *testing.T) {
	fx := newFixture(t, func(cfg *config.Config) { cfg.Cache.Disabled = true })

	page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{ViewerID: "viewer"})
	require.NoError(t, err)
	assert.True(t, page.Success)
	assert.Contains(t, page.Metadata.Degraded, types.DegradedCacheBypass)
	assert.False(t, page.Metadata.CacheHit)
}

// countingAdapter counts fetches and can block or fail on demand.
type countingAdapter struct {
	name    string
	fetches atomic.Int64
	block   chan struct{}
	err     error
	notes   []types.Note
}

func (a *countingAdapter) Name() string { return a.name }

func (a *countingAdapter) FetchCandidates(ctx context.Context, viewerID string, since time.Time, limit int) ([]types.Candidate, error) {
	a.fetches.Add(1)
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	out := make([]types.Candidate, 0, len(a.notes))
	for _, n := range a.notes {
		out = append(out, types.Candidate{Note: n, Source: types.SourceFollowing})
	}
	return out, nil
}

func fixtureWithAdapters(t *testing.T, adapters []source.Adapter, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	fx := newFixture(t, mutate...)
	fx.ctrl.adapters = adapters
	return fx
}

func TestSlowAdapterDegradesInsteadOfFailing(t *testing.T) {
	healthy := &countingAdapter{name: "healthy", notes: []types.Note{
		{ID: "n1", AuthorID: "a", CreatedAt: time.Now()},
	}}
	stuck := &countingAdapter{name: "stuck", block: make(chan struct{})}
	fx := fixtureWithAdapters(t, []source.Adapter{healthy, stuck}, func(cfg *config.Config) {
		cfg.Sources.AdapterTimeout = 20 * time.Millisecond
	})

	// Seed the note in the store so the filter does not discard it.
	require.NoError(t, fx.notes.Put(context.Background(), &types.Note{ID: "n1", AuthorID: "a", CreatedAt: time.Now()}))

	page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{ViewerID: "viewer"})
	require.NoError(t, err)
	assert.True(t, page.Success)
	assert.Len(t, page.Entries, 1)
	assert.Contains(t, page.Metadata.Degraded, types.DegradedAdapterTimeout)
}

func TestTotalAdapterLossFails(t *testing.T) {
	down1 := &countingAdapter{name: "down1", err: errors.New("boom")}
	down2 := &countingAdapter{name: "down2", err: errors.New("boom")}
	fx := fixtureWithAdapters(t, []source.Adapter{down1, down2})

	_, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{ViewerID: "viewer"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDeadlineExpiryServesDegradedEmptyPage(t *testing.T) {
	stuck := &countingAdapter{name: "stuck", block: make(chan struct{})}
	fx := fixtureWithAdapters(t, []source.Adapter{stuck}, func(cfg *config.Config) {
		cfg.Sources.AdapterTimeout = time.Second
	})
	defer close(stuck.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	page, err := fx.ctrl.GetTimeline(ctx, types.TimelineRequest{ViewerID: "viewer"})
	require.NoError(t, err)
	assert.True(t, page.Success)
	assert.Empty(t, page.Entries)
	assert.Contains(t, page.Metadata.Degraded, types.DegradedDeadline)
}

func TestConcurrentMissesCoalesceIntoOnePipelineRun(t *testing.T) {
	adapter := &countingAdapter{name: "counting", block: make(chan struct{})}
	fx := fixtureWithAdapters(t, []source.Adapter{adapter}, func(cfg *config.Config) {
		cfg.Sources.AdapterTimeout = time.Second
	})

	const readers = 8
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{ViewerID: "viewer"})
			assert.NoError(t, err)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(adapter.block)
	wg.Wait()

	assert.Equal(t, int64(1), adapter.fetches.Load())
}

func TestRateLimitReturnsError(t *testing.T) {
	fx := newFixture(t, func(cfg *config.Config) {
		cfg.RateLimit.RequestsPerMinute = 60
		cfg.RateLimit.Burst = 2
	})

	var limited bool
	for i := 0; i < 5; i++ {
		_, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{ViewerID: "chatty"})
		if errors.Is(err, ErrRateLimited) {
			limited = true
		}
	}
	assert.True(t, limited)

	// Other viewers are unaffected.
	_, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{ViewerID: "quiet"})
	assert.NoError(t, err)
}

func TestUserTimelineShowsAuthorNotesOnly(t *testing.T) {
	fx := newFixture(t)
	fx.seedNotes(t, "author", 5, time.Now().Add(-time.Hour))
	fx.seedNotes(t, "other", 5, time.Now().Add(-time.Hour))

	page, err := fx.ctrl.GetUserTimeline(context.Background(), "viewer", "author", types.Pagination{Limit: 10}, true, true)
	require.NoError(t, err)
	require.Len(t, page.Entries, 5)
	for _, e := range page.Entries {
		assert.Equal(t, "author", e.AuthorID)
	}
}

func TestUserTimelineReplyAndRenoteToggles(t *testing.T) {
	fx := newFixture(t)
	base := time.Now().Add(-time.Hour)
	require.NoError(t, fx.notes.Put(context.Background(), &types.Note{ID: "plain", AuthorID: "author", CreatedAt: base}))
	require.NoError(t, fx.notes.Put(context.Background(), &types.Note{ID: "reply", AuthorID: "author", IsReply: true, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, fx.notes.Put(context.Background(), &types.Note{ID: "renote", AuthorID: "author", IsRenote: true, CreatedAt: base.Add(2 * time.Minute)}))

	ids := func(page types.TimelinePage) []string {
		out := make([]string, len(page.Entries))
		for i, e := range page.Entries {
			out[i] = e.NoteID
		}
		return out
	}

	page, err := fx.ctrl.GetUserTimeline(context.Background(), "viewer", "author", types.Pagination{Limit: 10}, true, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"plain", "reply", "renote"}, ids(page))

	page, err = fx.ctrl.GetUserTimeline(context.Background(), "viewer", "author", types.Pagination{Limit: 10}, false, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"plain", "renote"}, ids(page))

	page, err = fx.ctrl.GetUserTimeline(context.Background(), "viewer", "author", types.Pagination{Limit: 10}, false, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"plain"}, ids(page))
}

func TestUserTimelineRespectsBlocks(t *testing.T) {
	fx := newFixture(t)
	fx.graph.Block("viewer", "author")
	fx.seedNotes(t, "author", 3, time.Now().Add(-time.Hour))

	page, err := fx.ctrl.GetUserTimeline(context.Background(), "viewer", "author", types.Pagination{}, true, true)
	require.NoError(t, err)
	assert.True(t, page.Success)
	assert.Empty(t, page.Entries)
}

func TestRefreshRebuildsAndBumpsGeneration(t *testing.T) {
	fx := newFixture(t)
	fx.graph.Follow("viewer", "author")
	fx.seedNotes(t, "author", 5, time.Now().Add(-time.Hour))

	first, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{ViewerID: "viewer", Algorithm: types.AlgorithmHybrid})
	require.NoError(t, err)

	refreshed, err := fx.ctrl.Refresh(context.Background(), "viewer", types.AlgorithmHybrid)
	require.NoError(t, err)
	assert.Greater(t, refreshed.Metadata.Generation, first.Metadata.Generation)
}

func TestMarkReadDrivesNewSinceLastRead(t *testing.T) {
	fx := newFixture(t)
	fx.graph.Follow("viewer", "author")
	fx.seedNotes(t, "author", 5, time.Now().Add(-time.Hour))

	page, err := fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{ViewerID: "viewer", Algorithm: types.AlgorithmChronological})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Metadata.NewSinceLastRead)

	fx.ctrl.MarkRead("viewer", time.Now())

	page, err = fx.ctrl.GetTimeline(context.Background(), types.TimelineRequest{ViewerID: "viewer", Algorithm: types.AlgorithmChronological})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Metadata.NewSinceLastRead)
}

func TestFanoutPatchAppearsWithoutRecompute(t *testing.T) {
	fx := newFixture(t)
	fx.graph.Follow("viewer", "author")
	fx.seedNotes(t, "author", 3, time.Now().Add(-time.Hour))

	registry := ranking.NewRegistry(fx.cfg.Ranking)
	broker := fanout.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	notifier := fanout.NewNotifier(fx.graph, fx.cache, fx.notes, registry, broker, fx.cfg.Fanout)
	notifier.Start()
	t.Cleanup(notifier.Stop)

	req := types.TimelineRequest{ViewerID: "viewer", Algorithm: types.AlgorithmHybrid}
	page, err := fx.ctrl.GetTimeline(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)

	fresh := &types.Note{ID: "author-note-new", AuthorID: "author", CreatedAt: time.Now()}
	require.NoError(t, fx.notes.Put(context.Background(), fresh))
	notifier.OnNewNote(fresh)

	require.Eventually(t, func() bool {
		page, err := fx.ctrl.GetTimeline(context.Background(), req)
		if err != nil || !page.Metadata.CacheHit {
			return false
		}
		for _, e := range page.Entries {
			if e.NoteID == "author-note-new" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}
