package notestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sonet/timeline/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketNotes = []byte("notes")
)

// BoltStore implements Store using BoltDB. It exists so a single-binary
// deployment survives restarts with its note set intact; the timeline
// cache itself is never persisted.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the note database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "notes.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNotes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(_ context.Context, noteID string) (*types.Note, error) {
	var note types.Note
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotes)
		data := b.Get([]byte(noteID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &note)
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *BoltStore) IsRemoved(ctx context.Context, noteID string) (bool, error) {
	note, err := s.Get(ctx, noteID)
	if err == ErrNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return note.Removed, nil
}

func (s *BoltStore) EngagementCounts(ctx context.Context, noteID string) (types.EngagementCounts, error) {
	note, err := s.Get(ctx, noteID)
	if err == ErrNotFound {
		return types.EngagementCounts{}, nil
	}
	if err != nil {
		return types.EngagementCounts{}, err
	}
	return note.Engagement, nil
}

func (s *BoltStore) ListByAuthors(_ context.Context, authorIDs []string, since time.Time, limit int) ([]types.Note, error) {
	authors := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = true
	}

	var out []types.Note
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotes)
		return b.ForEach(func(k, v []byte) error {
			var note types.Note
			if err := json.Unmarshal(v, &note); err != nil {
				return err
			}
			if authors[note.AuthorID] && note.CreatedAt.After(since) {
				out = append(out, note)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sortAndLimit(out, limit), nil
}

func (s *BoltStore) ListRecent(_ context.Context, since time.Time, limit int) ([]types.Note, error) {
	var out []types.Note
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotes)
		return b.ForEach(func(k, v []byte) error {
			var note types.Note
			if err := json.Unmarshal(v, &note); err != nil {
				return err
			}
			if note.CreatedAt.After(since) {
				out = append(out, note)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sortAndLimit(out, limit), nil
}

func (s *BoltStore) Put(_ context.Context, note *types.Note) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotes)
		data, err := json.Marshal(note)
		if err != nil {
			return err
		}
		return b.Put([]byte(note.ID), data)
	})
}

func (s *BoltStore) MarkRemoved(_ context.Context, noteID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotes)
		data := b.Get([]byte(noteID))
		if data == nil {
			return ErrNotFound
		}
		var note types.Note
		if err := json.Unmarshal(data, &note); err != nil {
			return err
		}
		note.Removed = true
		updated, err := json.Marshal(&note)
		if err != nil {
			return err
		}
		return b.Put([]byte(noteID), updated)
	})
}

func (s *BoltStore) ApplyEngagement(_ context.Context, noteID string, delta types.EngagementDelta) (types.EngagementCounts, error) {
	var counts types.EngagementCounts
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotes)
		data := b.Get([]byte(noteID))
		if data == nil {
			return ErrNotFound
		}
		var note types.Note
		if err := json.Unmarshal(data, &note); err != nil {
			return err
		}
		note.Engagement.Likes += delta.Likes
		note.Engagement.Renotes += delta.Renotes
		note.Engagement.Replies += delta.Replies
		note.Engagement = clampCounts(note.Engagement)
		counts = note.Engagement
		updated, err := json.Marshal(&note)
		if err != nil {
			return err
		}
		return b.Put([]byte(noteID), updated)
	})
	return counts, err
}
