package notestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sonet/timeline/pkg/types"
)

// MemoryStore is an in-memory Store used by the daemon in single-binary
// mode and by tests.
type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string]types.Note
}

// NewMemoryStore creates an empty in-memory note store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notes: make(map[string]types.Note)}
}

func (s *MemoryStore) Get(_ context.Context, noteID string) (*types.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, ok := s.notes[noteID]
	if !ok {
		return nil, ErrNotFound
	}
	return &note, nil
}

func (s *MemoryStore) IsRemoved(_ context.Context, noteID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, ok := s.notes[noteID]
	if !ok {
		return true, nil
	}
	return note.Removed, nil
}

func (s *MemoryStore) EngagementCounts(_ context.Context, noteID string) (types.EngagementCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.notes[noteID].Engagement, nil
}

func (s *MemoryStore) ListByAuthors(_ context.Context, authorIDs []string, since time.Time, limit int) ([]types.Note, error) {
	authors := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = true
	}

	s.mu.RLock()
	var out []types.Note
	for _, note := range s.notes {
		if authors[note.AuthorID] && note.CreatedAt.After(since) {
			out = append(out, note)
		}
	}
	s.mu.RUnlock()

	return sortAndLimit(out, limit), nil
}

func (s *MemoryStore) ListRecent(_ context.Context, since time.Time, limit int) ([]types.Note, error) {
	s.mu.RLock()
	var out []types.Note
	for _, note := range s.notes {
		if note.CreatedAt.After(since) {
			out = append(out, note)
		}
	}
	s.mu.RUnlock()

	return sortAndLimit(out, limit), nil
}

func (s *MemoryStore) Put(_ context.Context, note *types.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes[note.ID] = *note
	return nil
}

func (s *MemoryStore) MarkRemoved(_ context.Context, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes[noteID]
	if !ok {
		return ErrNotFound
	}
	note.Removed = true
	s.notes[noteID] = note
	return nil
}

func (s *MemoryStore) ApplyEngagement(_ context.Context, noteID string, delta types.EngagementDelta) (types.EngagementCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes[noteID]
	if !ok {
		return types.EngagementCounts{}, ErrNotFound
	}
	note.Engagement.Likes += delta.Likes
	note.Engagement.Renotes += delta.Renotes
	note.Engagement.Replies += delta.Replies
	note.Engagement = clampCounts(note.Engagement)
	s.notes[noteID] = note
	return note.Engagement, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// sortAndLimit orders notes newest first with note ID as the tie-break
// and truncates to limit.
func sortAndLimit(notes []types.Note, limit int) []types.Note {
	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.After(notes[j].CreatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
	if limit > 0 && len(notes) > limit {
		notes = notes[:limit]
	}
	return notes
}
