// internal/app/store/notifications/mongostore.go
package notifications

import (
	"context"
	"time"

	"github.com/dalemusser/campushub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps notification records in the offline_notifications
// collection, with the record id as _id.
type MongoStore struct {
	c *mongo.Collection
}

// NewMongo creates a MongoStore on db.
func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{c: db.Collection("offline_notifications")}
}

// EnsureIndexes creates the timestamp index used by retention and listing.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: 1}},
		Options: options.Index().SetName("idx_offline_notifications_timestamp"),
	})
	return err
}

// Put upserts rec by id.
func (s *MongoStore) Put(ctx context.Context, rec models.NotificationRecord) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.c.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, opts)
	return err
}

// Get returns the record with the given id.
func (s *MongoStore) Get(ctx context.Context, id string) (models.NotificationRecord, error) {
	var rec models.NotificationRecord
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return models.NotificationRecord{}, ErrNotFound
	}
	if err != nil {
		return models.NotificationRecord{}, err
	}
	return rec, nil
}

// All returns every record ordered by id, matching BoltStore key order.
func (s *MongoStore) All(ctx context.Context) ([]models.NotificationRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.NotificationRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead sets the read flag on one record.
func (s *MongoStore) MarkRead(ctx context.Context, id string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes every record.
func (s *MongoStore) Clear(ctx context.Context) error {
	_, err := s.c.DeleteMany(ctx, bson.M{})
	return err
}

// DeleteOlderThan removes records received before cutoff. Timestamps are
// fixed-width UTC strings, so a string comparison orders them by time.
func (s *MongoStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": models.FormatTimestamp(cutoff)}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}
