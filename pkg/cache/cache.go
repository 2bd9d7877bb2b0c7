package cache

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sonet/timeline/pkg/log"
	"github.com/sonet/timeline/pkg/metrics"
	"github.com/sonet/timeline/pkg/ranking"
	"github.com/sonet/timeline/pkg/types"
)

// Snapshot is one cached, ranked timeline. Entries are immutable once
// stored; patches replace the slice rather than mutate it, so readers
// holding a snapshot never observe a concurrent write.
type Snapshot struct {
	Entries    []types.TimelineEntry
	Algorithm  types.Algorithm
	Generation uint64
	Degraded   []string
	BuiltAt    time.Time
}

type viewerEntry struct {
	mu       sync.Mutex
	snapshot *Snapshot
	element  *list.Element
}

// Cache holds per-viewer ranked timelines with LRU capacity eviction
// and TTL expiry. Concurrent misses for the same viewer and algorithm
// coalesce into a single pipeline run.
//
// Generations are monotonic per viewer and survive invalidation: a
// cursor minted against generation N is detectably stale after the
// viewer's timeline is rebuilt as generation N+1.
type Cache struct {
	mu       sync.Mutex
	viewers  map[string]*viewerEntry
	lru      *list.List
	capacity int
	ttl      time.Duration

	generations map[string]uint64
	lastRead    map[string]time.Time

	group singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64

	enabled bool
	now     func() time.Time
}

// New creates a cache bounded to capacity viewers with the given entry
// TTL.
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		viewers:     make(map[string]*viewerEntry),
		lru:         list.New(),
		capacity:    capacity,
		ttl:         ttl,
		generations: make(map[string]uint64),
		lastRead:    make(map[string]time.Time),
		enabled:     true,
		now:         time.Now,
	}
}

// Enabled reports whether the cache participates in reads. A disabled
// cache makes every request a bypass; callers flag pages accordingly.
func (c *Cache) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetEnabled toggles cache participation at runtime.
func (c *Cache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// Get returns the viewer's snapshot when present, fresh, and built with
// the requested algorithm. Expired snapshots are evicted on the way out.
func (c *Cache) Get(viewerID string, algorithm types.Algorithm) (*Snapshot, bool) {
	entry := c.lookup(viewerID, true)
	if entry == nil {
		metrics.CacheMisses.Inc()
		c.misses.Add(1)
		return nil, false
	}

	entry.mu.Lock()
	snap := entry.snapshot
	entry.mu.Unlock()

	if snap == nil || snap.Algorithm != algorithm {
		metrics.CacheMisses.Inc()
		c.misses.Add(1)
		return nil, false
	}
	if c.now().Sub(snap.BuiltAt) > c.ttl {
		c.evict(viewerID, "ttl")
		metrics.CacheMisses.Inc()
		c.misses.Add(1)
		return nil, false
	}
	metrics.CacheHits.Inc()
	c.hits.Add(1)
	return snap, true
}

// Put stores a freshly computed timeline for the viewer and returns the
// generation assigned to it.
func (c *Cache) Put(viewerID string, algorithm types.Algorithm, entries []types.TimelineEntry, degraded []string) uint64 {
	c.mu.Lock()
	c.generations[viewerID]++
	gen := c.generations[viewerID]

	entry, ok := c.viewers[viewerID]
	if !ok {
		entry = &viewerEntry{}
		entry.element = c.lru.PushFront(viewerID)
		c.viewers[viewerID] = entry
		c.evictOverCapacityLocked()
	} else {
		c.lru.MoveToFront(entry.element)
	}
	metrics.CachedViewers.Set(float64(len(c.viewers)))
	c.mu.Unlock()

	entry.mu.Lock()
	entry.snapshot = &Snapshot{
		Entries:    entries,
		Algorithm:  algorithm,
		Generation: gen,
		Degraded:   degraded,
		BuiltAt:    c.now(),
	}
	entry.mu.Unlock()
	return gen
}

// GetOrCompute returns the viewer's cached snapshot or runs compute to
// build one, coalescing concurrent misses for the same viewer and
// algorithm into a single run. The computation is detached from the
// caller's context so an abandoned waiter cannot cancel work other
// waiters (and the cache) still want; callers that give up simply stop
// waiting.
func (c *Cache) GetOrCompute(ctx context.Context, viewerID string, algorithm types.Algorithm, compute func(context.Context) ([]types.TimelineEntry, []string, error)) (*Snapshot, bool, error) {
	if snap, ok := c.Get(viewerID, algorithm); ok {
		return snap, true, nil
	}

	key := viewerID + "\x00" + string(algorithm)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// Re-check under the flight: a racing miss may have already
		// populated the entry.
		if snap, ok := c.Get(viewerID, algorithm); ok {
			return snap, nil
		}
		entries, degraded, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		gen := c.Put(viewerID, algorithm, entries, degraded)
		snap, ok := c.Get(viewerID, algorithm)
		if !ok {
			// Evicted between Put and Get under extreme pressure; hand
			// the computed result to waiters anyway.
			snap = &Snapshot{Entries: entries, Algorithm: algorithm, Generation: gen, Degraded: degraded, BuiltAt: c.now()}
		}
		return snap, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		if res.Shared {
			metrics.PipelineCoalesced.Inc()
		}
		return res.Val.(*Snapshot), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Invalidate drops the viewer's snapshot. The generation counter is
// retained so stale cursors stay detectable.
func (c *Cache) Invalidate(viewerID string) {
	c.evict(viewerID, "invalidate")
}

// PatchIncremental inserts a new entry into the viewer's cached
// timeline at its ranked position without recomputing the rest. If the
// note is already present it is repositioned instead. Returns false
// when the viewer has no live snapshot to patch.
func (c *Cache) PatchIncremental(viewerID string, patch types.TimelineEntry) bool {
	entry := c.lookup(viewerID, false)
	if entry == nil {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	snap := entry.snapshot
	if snap == nil || c.now().Sub(snap.BuiltAt) > c.ttl {
		return false
	}

	entries := withoutNote(snap.Entries, patch.NoteID)
	idx := sort.Search(len(entries), func(i int) bool {
		return !ranking.Less(entries[i], patch)
	})
	patched := make([]types.TimelineEntry, 0, len(entries)+1)
	patched = append(patched, entries[:idx]...)
	patched = append(patched, patch)
	patched = append(patched, entries[idx:]...)

	next := *snap
	next.Entries = patched
	next.Generation = c.nextGeneration(viewerID)
	entry.snapshot = &next
	metrics.CachePatches.Inc()
	return true
}

// Reposition recomputes the placement of an already cached note after
// its score changed. A no-op when the note is not in the snapshot.
func (c *Cache) Reposition(viewerID, noteID string, score float64) bool {
	entry := c.lookup(viewerID, false)
	if entry == nil {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	snap := entry.snapshot
	if snap == nil {
		return false
	}

	var current *types.TimelineEntry
	for i := range snap.Entries {
		if snap.Entries[i].NoteID == noteID {
			current = &snap.Entries[i]
			break
		}
	}
	if current == nil {
		return false
	}

	moved := *current
	moved.Score = score

	entries := withoutNote(snap.Entries, noteID)
	idx := sort.Search(len(entries), func(i int) bool {
		return !ranking.Less(entries[i], moved)
	})
	patched := make([]types.TimelineEntry, 0, len(entries)+1)
	patched = append(patched, entries[:idx]...)
	patched = append(patched, moved)
	patched = append(patched, entries[idx:]...)

	next := *snap
	next.Entries = patched
	next.Generation = c.nextGeneration(viewerID)
	entry.snapshot = &next
	metrics.CachePatches.Inc()
	return true
}

// RemoveNote deletes the note from the viewer's snapshot if present.
func (c *Cache) RemoveNote(viewerID, noteID string) bool {
	entry := c.lookup(viewerID, false)
	if entry == nil {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	snap := entry.snapshot
	if snap == nil {
		return false
	}

	entries := withoutNote(snap.Entries, noteID)
	if len(entries) == len(snap.Entries) {
		return false
	}
	next := *snap
	next.Entries = entries
	next.Generation = c.nextGeneration(viewerID)
	entry.snapshot = &next
	return true
}

// Viewers returns the IDs of viewers with a live snapshot.
func (c *Cache) Viewers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.viewers))
	for id := range c.viewers {
		ids = append(ids, id)
	}
	return ids
}

// Algorithm returns the algorithm of the viewer's live snapshot.
func (c *Cache) Algorithm(viewerID string) (types.Algorithm, bool) {
	entry := c.lookup(viewerID, false)
	if entry == nil {
		return "", false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.snapshot == nil {
		return "", false
	}
	return entry.snapshot.Algorithm, true
}

// SetLastRead records the viewer's read marker. The marker outlives the
// snapshot so unread counts stay correct across evictions.
func (c *Cache) SetLastRead(viewerID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRead[viewerID] = at
}

// LastRead returns the viewer's read marker, zero when unknown.
func (c *Cache) LastRead(viewerID string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRead[viewerID]
}

// Stats reports current occupancy for health reporting.
func (c *Cache) Stats() (viewers, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.viewers), c.capacity
}

// HitRatio returns the lifetime hit ratio, zero before any read.
func (c *Cache) HitRatio() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// nextGeneration bumps the viewer's generation counter. Every write
// that changes the visible sequence gets a fresh generation so an
// in-flight paginator can detect staleness.
func (c *Cache) nextGeneration(viewerID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[viewerID]++
	return c.generations[viewerID]
}

func (c *Cache) lookup(viewerID string, touch bool) *viewerEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.viewers[viewerID]
	if !ok {
		return nil
	}
	if touch {
		c.lru.MoveToFront(entry.element)
	}
	return entry
}

func (c *Cache) evict(viewerID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.viewers[viewerID]
	if !ok {
		return
	}
	c.lru.Remove(entry.element)
	delete(c.viewers, viewerID)
	metrics.CacheEvictions.WithLabelValues(reason).Inc()
	metrics.CachedViewers.Set(float64(len(c.viewers)))
}

func (c *Cache) evictOverCapacityLocked() {
	for c.capacity > 0 && len(c.viewers) > c.capacity {
		back := c.lru.Back()
		if back == nil {
			return
		}
		victim := back.Value.(string)
		c.lru.Remove(back)
		delete(c.viewers, victim)
		metrics.CacheEvictions.WithLabelValues("lru").Inc()
		log.Debug().Str("viewer_id", victim).Msg("evicted least recently read viewer")
	}
	metrics.CachedViewers.Set(float64(len(c.viewers)))
}

func withoutNote(entries []types.TimelineEntry, noteID string) []types.TimelineEntry {
	out := make([]types.TimelineEntry, 0, len(entries))
	for _, e := range entries {
		if e.NoteID == noteID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// String implements fmt.Stringer for debug logging.
func (c *Cache) String() string {
	viewers, capacity := c.Stats()
	return fmt.Sprintf("cache(viewers=%d capacity=%d ttl=%s)", viewers, capacity, c.ttl)
}
