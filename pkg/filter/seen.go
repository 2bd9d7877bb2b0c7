package filter

import "sync"

// SeenStore remembers the note IDs most recently delivered to each
// viewer so consecutive timeline pages can suppress repeats. The window
// is a fixed-size ring: once full, the oldest entry is forgotten and may
// legitimately reappear.
type SeenStore struct {
	mu      sync.Mutex
	window  int
	viewers map[string]*seenRing
}

type seenRing struct {
	ids   []string
	index map[string]struct{}
	next  int
}

// NewSeenStore creates a store with the given per-viewer window size.
func NewSeenStore(window int) *SeenStore {
	if window <= 0 {
		window = 256
	}
	return &SeenStore{
		window:  window,
		viewers: make(map[string]*seenRing),
	}
}

// Mark records the IDs as delivered to the viewer.
func (s *SeenStore) Mark(viewerID string, noteIDs []string) {
	if len(noteIDs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.viewers[viewerID]
	if ring == nil {
		ring = &seenRing{
			ids:   make([]string, s.window),
			index: make(map[string]struct{}, s.window),
		}
		s.viewers[viewerID] = ring
	}
	for _, id := range noteIDs {
		if _, ok := ring.index[id]; ok {
			continue
		}
		if old := ring.ids[ring.next]; old != "" {
			delete(ring.index, old)
		}
		ring.ids[ring.next] = id
		ring.index[id] = struct{}{}
		ring.next = (ring.next + 1) % len(ring.ids)
	}
}

// Seen reports whether the note was delivered to the viewer within the
// current window.
func (s *SeenStore) Seen(viewerID, noteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.viewers[viewerID]
	if ring == nil {
		return false
	}
	_, ok := ring.index[noteID]
	return ok
}

// Forget drops the viewer's window entirely.
func (s *SeenStore) Forget(viewerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.viewers, viewerID)
}
