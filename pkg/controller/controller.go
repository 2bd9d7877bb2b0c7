package controller

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sonet/timeline/pkg/cache"
	"github.com/sonet/timeline/pkg/config"
	"github.com/sonet/timeline/pkg/cursor"
	"github.com/sonet/timeline/pkg/filter"
	"github.com/sonet/timeline/pkg/log"
	"github.com/sonet/timeline/pkg/metrics"
	"github.com/sonet/timeline/pkg/notestore"
	"github.com/sonet/timeline/pkg/ranking"
	"github.com/sonet/timeline/pkg/source"
	"github.com/sonet/timeline/pkg/types"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var (
	// ErrRateLimited is returned when the viewer exceeded the request
	// budget. The transport maps it to 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable is returned only on total candidate loss with no
	// cached timeline to serve. Partial failures degrade instead.
	ErrUnavailable = errors.New("timeline unavailable")
)

// Controller drives the timeline read path: candidate fan-in across
// source adapters, filtering, ranking, caching, and cursor pagination.
type Controller struct {
	cfg      *config.Config
	adapters []source.Adapter
	filter   *filter.Filter
	registry *ranking.Registry
	cache    *cache.Cache
	seen     *filter.SeenStore
	notes    notestore.Store
	limiter  *viewerLimiter
}

// New wires a controller from its collaborators.
func New(cfg *config.Config, adapters []source.Adapter, f *filter.Filter, registry *ranking.Registry, c *cache.Cache, seen *filter.SeenStore, notes notestore.Store) *Controller {
	return &Controller{
		cfg:      cfg,
		adapters: adapters,
		filter:   f,
		registry: registry,
		cache:    c,
		seen:     seen,
		notes:    notes,
		limiter:  newViewerLimiter(cfg.RateLimit),
	}
}

// GetTimeline returns one page of the viewer's home timeline. Partial
// upstream failures are absorbed into degradation flags on the page;
// the only errors returned are rate limiting and total candidate loss.
func (c *Controller) GetTimeline(ctx context.Context, req types.TimelineRequest) (types.TimelinePage, error) {
	if !c.limiter.Allow(req.ViewerID) {
		metrics.RateLimited.Inc()
		return types.TimelinePage{Error: ErrRateLimited.Error()}, ErrRateLimited
	}

	req = normalize(req)

	if !c.cache.Enabled() {
		entries, degraded, err := c.pipeline(ctx, req, false)
		if err != nil {
			return types.TimelinePage{Error: err.Error()}, err
		}
		degraded = append(degraded, types.DegradedCacheBypass)
		return c.paginate(req, entries, 0, false, degraded), nil
	}

	snap, hit, err := c.cache.GetOrCompute(ctx, req.ViewerID, req.Algorithm, func(cctx context.Context) ([]types.TimelineEntry, []string, error) {
		return c.pipeline(cctx, req, false)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		// The shared computation keeps running and will land in the
		// cache; this caller's deadline is spent, so serve a flagged
		// best-effort empty page instead of an error.
		return c.paginate(req, nil, 0, false, []string{types.DegradedDeadline}), nil
	}
	if err != nil {
		return types.TimelinePage{Error: err.Error()}, err
	}
	return c.paginate(req, snap.Entries, snap.Generation, hit, snap.Degraded), nil
}

// GetUserTimeline returns one page of a single author's notes as seen
// by the viewer: filtered for visibility, ordered newest first. Author
// pages are not cached; they are cheap single-source reads.
func (c *Controller) GetUserTimeline(ctx context.Context, viewerID, authorID string, p types.Pagination, includeReplies, includeRenotes bool) (types.TimelinePage, error) {
	if !c.limiter.Allow(viewerID) {
		metrics.RateLimited.Inc()
		return types.TimelinePage{Error: ErrRateLimited.Error()}, ErrRateLimited
	}

	req := normalize(types.TimelineRequest{
		ViewerID:       viewerID,
		Algorithm:      types.AlgorithmChronological,
		Pagination:     p,
		IncludeReplies: includeReplies,
		IncludeRenotes: includeRenotes,
	})

	since := time.Now().Add(-c.cfg.Sources.MaxAge)
	notes, err := c.notes.ListByAuthors(ctx, []string{authorID}, since, c.cfg.Sources.FetchLimit)
	if err != nil {
		log.Error().Err(err).Str("author_id", authorID).Msg("author timeline read failed")
		return types.TimelinePage{Error: ErrUnavailable.Error()}, ErrUnavailable
	}

	fetched := make([]types.Candidate, 0, len(notes))
	for _, note := range notes {
		fetched = append(fetched, types.Candidate{Note: note, Source: types.SourceFollowing})
	}
	candidates := c.merge([][]types.Candidate{fetched}, req)
	candidates, degraded := c.filter.Apply(ctx, viewerID, candidates, false)

	entries := c.registry.Chronological().Rank(time.Now(), candidates)
	var flags []string
	if degraded {
		flags = append(flags, types.DegradedFilter)
	}
	return c.paginate(req, entries, 0, false, flags), nil
}

// Refresh drops the viewer's cached timeline and recomputes it,
// suppressing notes delivered within the recently-seen window so the
// refreshed head is new material.
func (c *Controller) Refresh(ctx context.Context, viewerID string, algorithm types.Algorithm) (types.TimelinePage, error) {
	if !c.limiter.Allow(viewerID) {
		metrics.RateLimited.Inc()
		return types.TimelinePage{Error: ErrRateLimited.Error()}, ErrRateLimited
	}

	req := normalize(types.TimelineRequest{ViewerID: viewerID, Algorithm: algorithm})

	entries, degraded, err := c.pipeline(ctx, req, true)
	if err != nil {
		return types.TimelinePage{Error: err.Error()}, err
	}

	var gen uint64
	if c.cache.Enabled() {
		c.cache.Invalidate(viewerID)
		gen = c.cache.Put(viewerID, req.Algorithm, entries, degraded)
	} else {
		degraded = append(degraded, types.DegradedCacheBypass)
	}
	return c.paginate(req, entries, gen, false, degraded), nil
}

// MarkRead records that the viewer has read their timeline up to now.
func (c *Controller) MarkRead(viewerID string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	c.cache.SetLastRead(viewerID, at)
}

// pipeline runs one full timeline computation: parallel candidate
// fetch, merge, filter, rank. Adapter failures degrade the result; the
// only hard failure is losing every adapter at once.
func (c *Controller) pipeline(ctx context.Context, req types.TimelineRequest, suppressSeen bool) ([]types.TimelineEntry, []string, error) {
	metrics.PipelineRuns.Inc()
	start := time.Now()

	since := start.Add(-c.cfg.Sources.MaxAge)

	var (
		mu      sync.Mutex
		fetched = make([][]types.Candidate, len(c.adapters))
		flags   []string
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range c.adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			actx, cancel := context.WithTimeout(gctx, c.cfg.Sources.AdapterTimeout)
			defer cancel()

			candidates, err := adapter.FetchCandidates(actx, req.ViewerID, since, c.cfg.Sources.FetchLimit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				reason := "error"
				flag := types.DegradedAdapterUnavailable
				if errors.Is(err, context.DeadlineExceeded) {
					reason = "timeout"
					flag = types.DegradedAdapterTimeout
				}
				metrics.AdapterFailures.WithLabelValues(adapter.Name(), reason).Inc()
				flags = appendFlag(flags, flag)
				log.Warn().Err(err).Str("adapter", adapter.Name()).Str("viewer_id", req.ViewerID).Msg("candidate fetch degraded")
				return nil
			}
			fetched[i] = candidates
			return nil
		})
	}
	_ = g.Wait()

	if len(c.adapters) > 0 && failed == len(c.adapters) {
		return nil, nil, ErrUnavailable
	}
	if ctx.Err() != nil {
		flags = appendFlag(flags, types.DegradedDeadline)
	}

	merged := c.merge(fetched, req)

	filtered, filterDegraded := c.filter.Apply(ctx, req.ViewerID, merged, suppressSeen)
	if filterDegraded {
		flags = appendFlag(flags, types.DegradedFilter)
	}

	entries, fellBack := c.rank(req.Algorithm, filtered)
	if fellBack {
		flags = appendFlag(flags, types.DegradedRankingFallback)
	}

	log.Debug().
		Str("viewer_id", req.ViewerID).
		Str("algorithm", string(req.Algorithm)).
		Int("candidates", len(merged)).
		Int("entries", len(entries)).
		Dur("elapsed", time.Since(start)).
		Msg("pipeline run complete")
	return entries, flags, nil
}

// merge flattens per-adapter candidate sets, deduplicates by note ID
// (keeping the first adapter's copy, in registration order), and drops
// replies and renotes the request excluded.
func (c *Controller) merge(fetched [][]types.Candidate, req types.TimelineRequest) []types.Candidate {
	seen := make(map[string]struct{})
	var merged []types.Candidate
	for _, batch := range fetched {
		for _, cand := range batch {
			if _, dup := seen[cand.Note.ID]; dup {
				continue
			}
			if cand.Note.IsReply && !req.IncludeReplies {
				continue
			}
			if cand.Note.IsRenote && !req.IncludeRenotes {
				continue
			}
			seen[cand.Note.ID] = struct{}{}
			merged = append(merged, cand)
		}
	}
	return merged
}

// rank scores the candidates with the requested strategy, falling back
// to chronological ordering if the strategy panics. A misbehaving
// pluggable scorer costs ranking quality, not availability.
func (c *Controller) rank(algorithm types.Algorithm, candidates []types.Candidate) (entries []types.TimelineEntry, fellBack bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RankingFallbacks.Inc()
			log.Error().Interface("panic", r).Str("algorithm", string(algorithm)).Msg("ranking strategy panicked, falling back to chronological")
			entries = c.registry.Chronological().Rank(time.Now(), candidates)
			fellBack = true
		}
	}()
	entries = c.registry.Strategy(algorithm).Rank(time.Now(), candidates)
	return entries, false
}

// paginate cuts one page out of a ranked sequence: resume after the
// cursor position, clamp to the limit, mint the next cursor, and mark
// the delivered entries seen.
func (c *Controller) paginate(req types.TimelineRequest, entries []types.TimelineEntry, generation uint64, cacheHit bool, degraded []string) types.TimelinePage {
	meta := types.PageMetadata{
		Algorithm:  req.Algorithm,
		CacheHit:   cacheHit,
		Generation: generation,
		Degraded:   degraded,
	}

	start := 0
	if req.Pagination.Cursor != "" {
		cur, err := cursor.Decode(req.Pagination.Cursor)
		if err != nil || cur.Algorithm != req.Algorithm {
			return types.TimelinePage{
				Entries:  []types.TimelineEntry{},
				Success:  false,
				Error:    "invalid cursor",
				Metadata: meta,
			}
		}
		// Resume strictly after the cursor's (score, note ID) key. The
		// key survives inserts and deletions, so pages never skip or
		// repeat surviving entries even when the sequence changed.
		after := types.TimelineEntry{NoteID: cur.NoteID, Score: cur.Score}
		start = sort.Search(len(entries), func(i int) bool {
			return ranking.Less(after, entries[i])
		})
	}

	end := start + req.Pagination.Limit
	if end > len(entries) {
		end = len(entries)
	}
	page := make([]types.TimelineEntry, end-start)
	copy(page, entries[start:end])

	var next *string
	if end < len(entries) {
		last := page[len(page)-1]
		encoded := cursor.Encode(cursor.Cursor{
			Score:      last.Score,
			NoteID:     last.NoteID,
			Algorithm:  req.Algorithm,
			Generation: generation,
		})
		next = &encoded
	}

	if c.seen != nil && len(page) > 0 {
		ids := make([]string, len(page))
		for i, e := range page {
			ids[i] = e.NoteID
		}
		c.seen.Mark(req.ViewerID, ids)
	}

	meta.NewSinceLastRead = c.newSinceLastRead(req.ViewerID, entries)
	return types.TimelinePage{
		Entries:    page,
		NextCursor: next,
		Success:    true,
		Metadata:   meta,
	}
}

func (c *Controller) newSinceLastRead(viewerID string, entries []types.TimelineEntry) int {
	lastRead := c.cache.LastRead(viewerID)
	if lastRead.IsZero() {
		return len(entries)
	}
	count := 0
	for _, e := range entries {
		if e.InsertedAt.After(lastRead) {
			count++
		}
	}
	return count
}

func normalize(req types.TimelineRequest) types.TimelineRequest {
	if !req.Algorithm.Valid() {
		req.Algorithm = types.AlgorithmHybrid
	}
	if req.Pagination.Limit <= 0 {
		req.Pagination.Limit = defaultPageLimit
	}
	if req.Pagination.Limit > maxPageLimit {
		req.Pagination.Limit = maxPageLimit
	}
	return req
}

func appendFlag(flags []string, flag string) []string {
	for _, f := range flags {
		if f == flag {
			return flags
		}
	}
	return append(flags, flag)
}
