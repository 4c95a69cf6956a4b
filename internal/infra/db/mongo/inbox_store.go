package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InboxStore remembers which event ids a consumer has already processed.
type InboxStore struct {
	col      *mongo.Collection
	consumer string
}

func NewInboxStore(db *mongo.Database, consumer string) *InboxStore {
	return &InboxStore{col: db.Collection("chat_inbox"), consumer: consumer}
}

func (s *InboxStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "consumer", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Processed reports whether eventID was marked by this consumer.
func (s *InboxStore) Processed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.col.CountDocuments(ctx, bson.M{"event_id": eventID, "consumer": s.consumer}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed records eventID; marking it twice is not an error.
func (s *InboxStore) MarkProcessed(ctx context.Context, eventID string) error {
	doc := bson.M{"event_id": eventID, "consumer": s.consumer, "received_at": time.Now().UTC()}
	_, err := s.col.InsertOne(ctx, doc)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return err
	}
	return nil
}
