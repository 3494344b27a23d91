// Package metadata defines the file/folder record model and the Store
// interface backing it. Implementations live in subpackages (mongo for
// production, memory for tests and single-binary setups).
package metadata

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RootParent is the canonical parentId value meaning "no parent folder".
// The API accepts it as the number 0 or the string "0"; stores always see
// this canonical string.
const RootParent = "0"

// Record types.
const (
	TypeFolder = "folder"
	TypeFile   = "file"
	TypeImage  = "image"
)

// ValidType reports whether t is one of the accepted record types.
func ValidType(t string) bool {
	return t == TypeFolder || t == TypeFile || t == TypeImage
}

// FileRecord is a metadata document describing a file or folder.
// LocalPath is the blob storage key for non-folder records and is never
// serialized to clients.
type FileRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	Name      string             `bson:"name" json:"name"`
	Type      string             `bson:"type" json:"type"`
	IsPublic  bool               `bson:"isPublic" json:"isPublic"`
	ParentID  string             `bson:"parentId" json:"parentId"`
	LocalPath string             `bson:"localPath,omitempty" json:"-"`
}

// IsFolder reports whether the record is a folder.
func (r *FileRecord) IsFolder() bool { return r.Type == TypeFolder }

// ErrNotFound is returned by stores when no record matches.
var ErrNotFound = errors.New("file record not found")

// Store persists file records.
type Store interface {
	// Insert persists a new record and assigns its ID.
	Insert(ctx context.Context, rec *FileRecord) error

	// GetByID returns a record by id regardless of owner.
	GetByID(ctx context.Context, id primitive.ObjectID) (*FileRecord, error)

	// GetOwned returns a record only if it is owned by userID.
	GetOwned(ctx context.Context, id, userID primitive.ObjectID) (*FileRecord, error)

	// ListByParent returns records owned by userID whose parentId equals
	// parentID exactly, in the store's natural order, skipping skip records
	// and returning at most limit.
	ListByParent(ctx context.Context, userID primitive.ObjectID, parentID string, skip, limit int64) ([]*FileRecord, error)

	// SetPublic updates the record's isPublic flag.
	SetPublic(ctx context.Context, id primitive.ObjectID, public bool) error
}
