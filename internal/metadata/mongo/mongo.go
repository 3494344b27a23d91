// Package mongo implements metadata.Store on a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/filevault/filevault/internal/metadata"
)

const filesCollection = "files"

// Store is a MongoDB-backed metadata store.
type Store struct {
	client *mongodrv.Client
	files  *mongodrv.Collection
}

// New connects to MongoDB and returns a Store bound to the files collection.
func New(ctx context.Context, url, database string) (*Store, error) {
	client, err := mongodrv.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &Store{
		client: client,
		files:  client.Database(database).Collection(filesCollection),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Insert persists a new record and assigns its ID.
func (s *Store) Insert(ctx context.Context, rec *metadata.FileRecord) error {
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if _, err := s.files.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

// GetByID returns a record by id regardless of owner.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*metadata.FileRecord, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetOwned returns a record only if it is owned by userID.
func (s *Store) GetOwned(ctx context.Context, id, userID primitive.ObjectID) (*metadata.FileRecord, error) {
	return s.findOne(ctx, bson.M{"_id": id, "userId": userID})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*metadata.FileRecord, error) {
	var rec metadata.FileRecord
	err := s.files.FindOne(ctx, filter).Decode(&rec)
	if errors.Is(err, mongodrv.ErrNoDocuments) {
		return nil, metadata.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find file record: %w", err)
	}
	return &rec, nil
}

// ListByParent returns records owned by userID under parentID in natural
// order, with skip/limit pagination.
func (s *Store) ListByParent(ctx context.Context, userID primitive.ObjectID, parentID string, skip, limit int64) ([]*metadata.FileRecord, error) {
	opts := options.Find().SetSkip(skip).SetLimit(limit)
	cursor, err := s.files.Find(ctx, bson.M{"userId": userID, "parentId": parentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []*metadata.FileRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode file records: %w", err)
	}
	return records, nil
}

// SetPublic updates the record's isPublic flag.
func (s *Store) SetPublic(ctx context.Context, id primitive.ObjectID, public bool) error {
	res, err := s.files.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"isPublic": public}})
	if err != nil {
		return fmt.Errorf("update file record: %w", err)
	}
	if res.MatchedCount == 0 {
		return metadata.ErrNotFound
	}
	return nil
}
