// Package files implements the file access controller: upload validation,
// ownership and visibility enforcement, metadata and blob persistence, and
// download streaming. All stores are explicit dependencies passed at
// construction.
package files

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/filevault/filevault/internal/logging"
	"github.com/filevault/filevault/internal/metadata"
	"github.com/filevault/filevault/internal/metrics"
	"github.com/filevault/filevault/internal/queue"
	"github.com/filevault/filevault/internal/storage"
)

// PageSize is the fixed number of records per list page.
const PageSize = 20

// Service is the file access controller.
type Service struct {
	metadata metadata.Store
	blobs    storage.Backend
	jobs     queue.Enqueuer
}

// NewService creates a file access controller with its collaborators.
func NewService(meta metadata.Store, blobs storage.Backend, jobs queue.Enqueuer) *Service {
	return &Service{
		metadata: meta,
		blobs:    blobs,
		jobs:     jobs,
	}
}

// UploadParams are the inputs to Upload. ParentID is the canonical form:
// metadata.RootParent or a record id in hex.
type UploadParams struct {
	Name     string
	Type     string
	ParentID string
	IsPublic bool
	Data     string // base64-encoded content, required unless Type is folder
}

// Upload validates the request, persists the metadata record, and for
// non-folders writes the decoded payload to blob storage first. Image
// uploads enqueue one thumbnail job after the record is persisted; an
// enqueue failure is logged but does not undo the upload.
func (s *Service) Upload(ctx context.Context, userID string, p UploadParams) (*metadata.FileRecord, error) {
	owner, err := parseUserID(userID)
	if err != nil {
		return nil, ErrUnauthorized
	}

	if p.Name == "" {
		return nil, ErrMissingName
	}
	if !metadata.ValidType(p.Type) {
		return nil, ErrMissingType
	}
	if p.Data == "" && p.Type != metadata.TypeFolder {
		return nil, ErrMissingData
	}

	parent := p.ParentID
	if parent == "" {
		parent = metadata.RootParent
	}
	if parent != metadata.RootParent {
		parentOID, err := primitive.ObjectIDFromHex(parent)
		if err != nil {
			return nil, ErrParentNotFound
		}
		parentRec, err := s.metadata.GetByID(ctx, parentOID)
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, ErrParentNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("resolve parent: %w", err)
		}
		if !parentRec.IsFolder() {
			return nil, ErrParentNotFolder
		}
	}

	rec := &metadata.FileRecord{
		UserID:   owner,
		Name:     p.Name,
		Type:     p.Type,
		IsPublic: p.IsPublic,
		ParentID: parent,
	}

	if p.Type == metadata.TypeFolder {
		if err := s.metadata.Insert(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist folder record: %w", err)
		}
		metrics.RecordUpload(rec.Type, 0, true)
		return rec, nil
	}

	content, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, ErrMissingData
	}

	// Blob first, then metadata: a failed blob write creates no record; a
	// failed insert leaves at worst an orphan blob, which we try to remove.
	key := uuid.NewString()
	if err := s.blobs.PutObject(ctx, key, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	rec.LocalPath = key

	if err := s.metadata.Insert(ctx, rec); err != nil {
		if delErr := s.blobs.DeleteObject(ctx, key); delErr != nil {
			logging.Warn("orphan blob cleanup failed",
				zap.String("key", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("persist file record: %w", err)
	}
	metrics.RecordUpload(rec.Type, int64(len(content)), true)

	if p.Type == metadata.TypeImage {
		if err := s.jobs.Enqueue(ctx, queue.Job{FileID: rec.ID.Hex()}); err != nil {
			logging.Warn("thumbnail job enqueue failed",
				zap.String("file_id", rec.ID.Hex()), zap.Error(err))
		}
	}

	return rec, nil
}

// Get returns a record only when it is owned by the caller. Absent and
// foreign records are both ErrNotFound.
func (s *Service) Get(ctx context.Context, userID, id string) (*metadata.FileRecord, error) {
	owner, err := parseUserID(userID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	rec, err := s.metadata.GetOwned(ctx, oid, owner)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List returns the caller's records under parentID, PageSize per page.
// parentID is compared by exact equality against the stored value.
func (s *Service) List(ctx context.Context, userID, parentID string, page int) ([]*metadata.FileRecord, error) {
	owner, err := parseUserID(userID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if parentID == "" {
		parentID = metadata.RootParent
	}
	if page < 0 {
		page = 0
	}
	records, err := s.metadata.ListByParent(ctx, owner, parentID, int64(page)*PageSize, PageSize)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Publish makes a record public.
func (s *Service) Publish(ctx context.Context, userID, id string) (*metadata.FileRecord, error) {
	return s.setPublic(ctx, userID, id, true)
}

// Unpublish makes a record private.
func (s *Service) Unpublish(ctx context.Context, userID, id string) (*metadata.FileRecord, error) {
	return s.setPublic(ctx, userID, id, false)
}

// setPublic flips visibility with an update-then-read; the two round trips
// are not isolated against concurrent toggles, last writer wins.
func (s *Service) setPublic(ctx context.Context, userID, id string, public bool) (*metadata.FileRecord, error) {
	owner, err := parseUserID(userID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	if _, err := s.metadata.GetOwned(ctx, oid, owner); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	if err := s.metadata.SetPublic(ctx, oid, public); err != nil {
		return nil, fmt.Errorf("update visibility: %w", err)
	}
	rec, err := s.metadata.GetByID(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("reload record: %w", err)
	}
	return rec, nil
}

// Content is a downloadable blob stream.
type Content struct {
	Reader      io.ReadCloser
	Size        int64
	ContentType string
}

// Download streams a record's blob. userID is the resolved caller identity,
// or empty for unauthenticated requests. Private records are only served to
// their owner; every denial is ErrNotFound so existence never leaks.
func (s *Service) Download(ctx context.Context, userID, id string) (*Content, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	rec, err := s.metadata.GetByID(ctx, oid)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	if !rec.IsPublic {
		owner, err := parseUserID(userID)
		if err != nil || rec.UserID != owner {
			return nil, ErrNotFound
		}
	}

	if rec.IsFolder() {
		return nil, ErrFolderNoContent
	}

	exists, err := s.blobs.ObjectExists(ctx, rec.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("stat blob: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	reader, size, err := s.blobs.GetObject(ctx, rec.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}

	return &Content{
		Reader:      reader,
		Size:        size,
		ContentType: ContentTypeFor(rec.Name),
	}, nil
}

// ContentTypeFor resolves a content type from a file name's extension,
// falling back to a generic binary type.
func ContentTypeFor(name string) string {
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return ct
}

func parseUserID(userID string) (primitive.ObjectID, error) {
	if userID == "" {
		return primitive.NilObjectID, ErrUnauthorized
	}
	return primitive.ObjectIDFromHex(userID)
}
