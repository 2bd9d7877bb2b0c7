package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/sonet/timeline/pkg/cache"
	"github.com/sonet/timeline/pkg/config"
	"github.com/sonet/timeline/pkg/graph"
	"github.com/sonet/timeline/pkg/log"
	"github.com/sonet/timeline/pkg/metrics"
	"github.com/sonet/timeline/pkg/notestore"
	"github.com/sonet/timeline/pkg/ranking"
	"github.com/sonet/timeline/pkg/types"
)

type jobKind int

const (
	jobNewNote jobKind = iota
	jobEngagement
	jobNoteDeleted
	jobFollowChange
)

type job struct {
	kind       jobKind
	note       *types.Note
	noteID     string
	delta      types.EngagementDelta
	followerID string
}

// Notifier applies write-side events to cached timelines asynchronously.
// Publisher calls enqueue and return immediately; a fixed worker pool
// walks affected viewers, patches their cached snapshots in place, and
// emits live events through the broker. When the queue is full the
// event is dropped and counted: affected viewers converge on their next
// TTL-driven recompute instead.
type Notifier struct {
	graph    graph.Service
	cache    *cache.Cache
	notes    notestore.Store
	registry *ranking.Registry
	broker   *Broker
	cfg      config.FanoutConfig

	queue    chan job
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewNotifier creates the notifier with its worker pool unstarted.
func NewNotifier(g graph.Service, c *cache.Cache, notes notestore.Store, registry *ranking.Registry, broker *Broker, cfg config.FanoutConfig) *Notifier {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.FollowerPageSize <= 0 {
		cfg.FollowerPageSize = 500
	}
	return &Notifier{
		graph:    g,
		cache:    c,
		notes:    notes,
		registry: registry,
		broker:   broker,
		cfg:      cfg,
		queue:    make(chan job, cfg.QueueSize),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the worker pool.
func (n *Notifier) Start() {
	for i := 0; i < n.cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	log.Info().Int("workers", n.cfg.Workers).Int("queue_size", n.cfg.QueueSize).Msg("fanout notifier started")
}

// Stop drains in-flight jobs and stops the workers.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		n.wg.Wait()
	})
}

// QueueDepth reports the number of pending jobs, for health reporting.
func (n *Notifier) QueueDepth() int {
	return len(n.queue)
}

// OnNewNote schedules fanout of a freshly published note to the cached
// timelines of the author's followers.
func (n *Notifier) OnNewNote(note *types.Note) {
	metrics.FanoutEvents.WithLabelValues("new_note").Inc()
	n.enqueue(job{kind: jobNewNote, note: note})
}

// OnEngagementChange schedules rescoring of a note across cached
// timelines after its engagement counters moved.
func (n *Notifier) OnEngagementChange(noteID string, delta types.EngagementDelta) {
	metrics.FanoutEvents.WithLabelValues("engagement").Inc()
	n.enqueue(job{kind: jobEngagement, noteID: noteID, delta: delta})
}

// OnNoteDeleted schedules removal of the note from every cached
// timeline.
func (n *Notifier) OnNoteDeleted(noteID string) {
	metrics.FanoutEvents.WithLabelValues("note_deleted").Inc()
	n.enqueue(job{kind: jobNoteDeleted, noteID: noteID})
}

// OnFollowEvent schedules invalidation of the follower's timeline after
// a follow or unfollow. The next read recomputes with the new graph.
func (n *Notifier) OnFollowEvent(followerID, followeeID string) {
	metrics.FanoutEvents.WithLabelValues("follow_change").Inc()
	n.enqueue(job{kind: jobFollowChange, followerID: followerID, noteID: followeeID})
}

func (n *Notifier) enqueue(j job) {
	select {
	case n.queue <- j:
	default:
		metrics.FanoutDropped.Inc()
		log.Warn().Int("queue_size", n.cfg.QueueSize).Msg("fanout queue full, dropping event")
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for {
		select {
		case j := <-n.queue:
			n.handle(j)
		case <-n.stopCh:
			// Drain what is already queued before exiting.
			for {
				select {
				case j := <-n.queue:
					n.handle(j)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) handle(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch j.kind {
	case jobNewNote:
		n.fanOutNote(ctx, j.note)
	case jobEngagement:
		n.rescoreNote(ctx, j.noteID, j.delta)
	case jobNoteDeleted:
		n.removeNote(ctx, j.noteID)
	case jobFollowChange:
		n.invalidateFollower(j.followerID)
	}
}

// fanOutNote patches the note into the cached timeline of every
// follower that currently has one. Followers are read page by page so a
// high-follower author does not materialize its whole audience at once.
func (n *Notifier) fanOutNote(ctx context.Context, note *types.Note) {
	if note == nil {
		return
	}
	cursor := ""
	for {
		followers, next, err := n.graph.Followers(ctx, note.AuthorID, cursor, n.cfg.FollowerPageSize)
		if err != nil {
			log.Error().Err(err).Str("author_id", note.AuthorID).Msg("follower listing failed, fanout incomplete")
			return
		}
		for i, followerID := range followers {
			if i%n.cfg.BatchSize == 0 && ctx.Err() != nil {
				log.Warn().Str("note_id", note.ID).Msg("fanout deadline hit, remaining followers converge on recompute")
				return
			}
			n.patchFollower(followerID, note)
		}
		if next == "" {
			return
		}
		cursor = next
	}
}

func (n *Notifier) patchFollower(followerID string, note *types.Note) {
	algorithm, ok := n.cache.Algorithm(followerID)
	if !ok {
		// No live snapshot, nothing to patch; the note arrives on the
		// follower's next recompute.
		return
	}

	entries := n.registry.Strategy(algorithm).Rank(time.Now(), []types.Candidate{{
		Note:   *note,
		Source: types.SourceFollowing,
	}})
	if len(entries) == 0 {
		return
	}
	entry := entries[0]
	entry.Reason = types.ReasonFanout

	if n.cache.PatchIncremental(followerID, entry) {
		metrics.FanoutPatches.Inc()
		n.broker.Publish(&Event{
			Type:     EventTimelineAppended,
			ViewerID: followerID,
			NoteID:   note.ID,
			AuthorID: note.AuthorID,
			Entry:    &entry,
		})
	}
}

// rescoreNote applies the engagement delta to the note store, then
// repositions the note in every score-sensitive cached timeline.
// Chronological snapshots keep their order; engagement does not move
// creation time.
func (n *Notifier) rescoreNote(ctx context.Context, noteID string, delta types.EngagementDelta) {
	if _, err := n.notes.ApplyEngagement(ctx, noteID, delta); err != nil {
		log.Debug().Err(err).Str("note_id", noteID).Msg("engagement update on unknown note")
		return
	}
	note, err := n.notes.Get(ctx, noteID)
	if err != nil || note == nil {
		return
	}

	now := time.Now()
	for _, viewerID := range n.cache.Viewers() {
		algorithm, ok := n.cache.Algorithm(viewerID)
		if !ok || !algorithm.ScoreSensitive() {
			continue
		}
		entries := n.registry.Strategy(algorithm).Rank(now, []types.Candidate{{
			Note:   *note,
			Source: types.SourceFollowing,
		}})
		if len(entries) == 0 {
			continue
		}
		if n.cache.Reposition(viewerID, noteID, entries[0].Score) {
			metrics.FanoutPatches.Inc()
			n.broker.Publish(&Event{
				Type:     EventTimelineRepositions,
				ViewerID: viewerID,
				NoteID:   noteID,
				AuthorID: note.AuthorID,
			})
		}
	}
}

func (n *Notifier) removeNote(ctx context.Context, noteID string) {
	if err := n.notes.MarkRemoved(ctx, noteID); err != nil {
		log.Debug().Err(err).Str("note_id", noteID).Msg("delete of unknown note")
	}
	for _, viewerID := range n.cache.Viewers() {
		if n.cache.RemoveNote(viewerID, noteID) {
			n.broker.Publish(&Event{
				Type:     EventTimelineRemoved,
				ViewerID: viewerID,
				NoteID:   noteID,
			})
		}
	}
}

func (n *Notifier) invalidateFollower(followerID string) {
	n.cache.Invalidate(followerID)
	n.broker.Publish(&Event{
		Type:     EventTimelineInvalidated,
		ViewerID: followerID,
	})
}
