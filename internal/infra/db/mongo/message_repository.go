package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatrelay/internal/domain/messages"
)

// MessageRepository stores messages in a single collection. ObjectIDs break
// ties between messages created in the same millisecond.
type MessageRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection("messages"), now: time.Now}
}

// EnsureIndexes creates the conversation and unread indexes.
func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}, {Key: "sender_id", Value: 1}}},
	})
	return err
}

type messageDocument struct {
	ID         primitive.ObjectID `bson:"_id"`
	SenderID   string             `bson:"sender_id"`
	ReceiverID string             `bson:"receiver_id"`
	Text       string             `bson:"text,omitempty"`
	ImageRef   string             `bson:"image_ref,omitempty"`
	IsRead     bool               `bson:"is_read"`
	CreatedAt  time.Time          `bson:"created_at"`
}

func (d messageDocument) toDomain() messages.Message {
	return messages.Message{
		ID:         d.ID.Hex(),
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		ImageRef:   d.ImageRef,
		IsRead:     d.IsRead,
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

func (r *MessageRepository) Create(ctx context.Context, draft messages.Draft) (messages.Message, error) {
	if err := draft.Validate(); err != nil {
		return messages.Message{}, err
	}
	doc := messageDocument{
		ID:         primitive.NewObjectID(),
		SenderID:   draft.SenderID,
		ReceiverID: draft.ReceiverID,
		Text:       draft.Text,
		ImageRef:   draft.ImageRef,
		CreatedAt:  r.now().UTC().Truncate(time.Millisecond),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return messages.Message{}, err
	}
	return doc.toDomain(), nil
}

func (r *MessageRepository) FindConversation(ctx context.Context, pair messages.PairFilter) ([]messages.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, conversationFilter(pair), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]messages.Message, 0)
	for cur.Next(ctx) {
		var doc messageDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cur.Err()
}

func (r *MessageRepository) MarkRead(ctx context.Context, filter messages.ReadFilter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	res, err := r.col.UpdateMany(ctx, unreadFilter(filter), bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	cur, err := r.col.Aggregate(ctx, unreadPipeline(viewerID))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	counts := make(map[string]int)
	for cur.Next(ctx) {
		var row struct {
			SenderID string `bson:"_id"`
			Count    int    `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.SenderID] = row.Count
	}
	return counts, cur.Err()
}

func (r *MessageRepository) Ping(ctx context.Context) error {
	return r.col.Database().Client().Ping(ctx, nil)
}

func conversationFilter(pair messages.PairFilter) bson.M {
	both := bson.A{pair.A, pair.B}
	return bson.M{
		"sender_id":   bson.M{"$in": both},
		"receiver_id": bson.M{"$in": both},
	}
}

func unreadFilter(filter messages.ReadFilter) bson.M {
	return bson.M{
		"receiver_id": filter.OwnerID,
		"sender_id":   filter.CounterpartID,
		"is_read":     false,
	}
}

func unreadPipeline(viewerID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"receiver_id": viewerID, "is_read": false}}},
		{{Key: "$group", Value: bson.M{"_id": "$sender_id", "count": bson.M{"$sum": 1}}}},
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

var _ messages.Repository = (*MessageRepository)(nil)
