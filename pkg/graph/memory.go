package graph

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// MemoryGraph is an in-memory graph.Service used by the daemon in
// single-binary mode and by tests. It is not a system of record.
type MemoryGraph struct {
	mu        sync.RWMutex
	following map[string]map[string]bool // viewer -> followee set
	followers map[string]map[string]bool // author -> follower set
	blocked   map[string]map[string]bool // viewer -> blocked/muted author set
}

// NewMemoryGraph creates an empty in-memory social graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		following: make(map[string]map[string]bool),
		followers: make(map[string]map[string]bool),
		blocked:   make(map[string]map[string]bool),
	}
}

// Follow records that follower follows followee.
func (g *MemoryGraph) Follow(followerID, followeeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.following[followerID] == nil {
		g.following[followerID] = make(map[string]bool)
	}
	g.following[followerID][followeeID] = true

	if g.followers[followeeID] == nil {
		g.followers[followeeID] = make(map[string]bool)
	}
	g.followers[followeeID][followerID] = true
}

// Unfollow removes a follow edge.
func (g *MemoryGraph) Unfollow(followerID, followeeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.following[followerID], followeeID)
	delete(g.followers[followeeID], followerID)
}

// Block records that viewer has blocked or muted author.
func (g *MemoryGraph) Block(viewerID, authorID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.blocked[viewerID] == nil {
		g.blocked[viewerID] = make(map[string]bool)
	}
	g.blocked[viewerID][authorID] = true
}

// Unblock removes a block/mute edge.
func (g *MemoryGraph) Unblock(viewerID, authorID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.blocked[viewerID], authorID)
}

func (g *MemoryGraph) IsBlockedOrMuted(_ context.Context, viewerID, authorID string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.blocked[viewerID][authorID], nil
}

func (g *MemoryGraph) Following(_ context.Context, viewerID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.following[viewerID]))
	for id := range g.following[viewerID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Followers pages through the sorted follower set. The cursor is the
// numeric offset into the sorted listing; opaque to callers.
func (g *MemoryGraph) Followers(_ context.Context, authorID, cursor string, limit int) ([]string, string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	all := make([]string, 0, len(g.followers[authorID]))
	for id := range g.followers[authorID] {
		all = append(all, id)
	}
	sort.Strings(all)

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, "", nil
		}
		offset = n
	}
	if offset >= len(all) {
		return nil, "", nil
	}
	if limit <= 0 {
		limit = len(all)
	}

	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[offset:end]

	next := ""
	if end < len(all) {
		next = strconv.Itoa(end)
	}
	return page, next, nil
}
