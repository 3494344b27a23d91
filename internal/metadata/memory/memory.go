// Package memory implements metadata.Store in process memory. It preserves
// insertion order so pagination behaves like the MongoDB store's natural
// order. Intended for tests and single-binary development setups.
package memory

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/filevault/filevault/internal/metadata"
)

// Store is an in-memory metadata store.
type Store struct {
	mu      sync.RWMutex
	records []*metadata.FileRecord
	byID    map[primitive.ObjectID]*metadata.FileRecord
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{byID: make(map[primitive.ObjectID]*metadata.FileRecord)}
}

// Insert persists a new record and assigns its ID.
func (s *Store) Insert(_ context.Context, rec *metadata.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	cp := *rec
	s.records = append(s.records, &cp)
	s.byID[cp.ID] = &cp
	return nil
}

// GetByID returns a record by id regardless of owner.
func (s *Store) GetByID(_ context.Context, id primitive.ObjectID) (*metadata.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	out := *rec
	return &out, nil
}

// GetOwned returns a record only if it is owned by userID.
func (s *Store) GetOwned(_ context.Context, id, userID primitive.ObjectID) (*metadata.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok || rec.UserID != userID {
		return nil, metadata.ErrNotFound
	}
	out := *rec
	return &out, nil
}

// ListByParent returns records owned by userID under parentID in insertion
// order, with skip/limit pagination.
func (s *Store) ListByParent(_ context.Context, userID primitive.ObjectID, parentID string, skip, limit int64) ([]*metadata.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*metadata.FileRecord{}
	var matched int64
	for _, rec := range s.records {
		if rec.UserID != userID || rec.ParentID != parentID {
			continue
		}
		matched++
		if matched <= skip {
			continue
		}
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// SetPublic updates the record's isPublic flag.
func (s *Store) SetPublic(_ context.Context, id primitive.ObjectID, public bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return metadata.ErrNotFound
	}
	rec.IsPublic = public
	return nil
}
