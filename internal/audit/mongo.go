package audit

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "sync_log"

// MongoStore keeps the log in a sync_log collection on a document target.
type MongoStore struct {
	coll *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{coll: client.Database(database).Collection(mongoCollection)}
}

func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "object_type", Value: 1},
			{Key: "object_name", Value: 1},
			{Key: "timestamp", Value: -1},
		},
	})
	if err != nil {
		return fmt.Errorf("create sync_log index: %w", err)
	}
	return nil
}

func (s *MongoStore) Append(ctx context.Context, rec *SyncRecord) error {
	stampRecord(rec)
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("append sync_log record for %s %s: %w", rec.ObjectType, rec.ObjectName, err)
	}
	return nil
}

func (s *MongoStore) Latest(ctx context.Context, objectType, objectName string) (*SyncRecord, error) {
	filter := bson.D{
		{Key: "object_type", Value: objectType},
		{Key: "object_name", Value: objectName},
	}
	opts := options.FindOne().SetSort(bson.D{
		{Key: "timestamp", Value: -1},
		{Key: "_id", Value: -1},
	})
	var rec SyncRecord
	err := s.coll.FindOne(ctx, filter, opts).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoHistory
		}
		return nil, fmt.Errorf("read sync_log for %s %s: %w", objectType, objectName, err)
	}
	return &rec, nil
}
