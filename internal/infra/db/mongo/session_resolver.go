package mongo

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"chatrelay/internal/domain/auth"
)

// SessionResolver looks up bearer tokens in the sessions collection written
// by the auth service.
type SessionResolver struct {
	col *mongo.Collection
	now func() time.Time
}

func NewSessionResolver(db *mongo.Database, collection string) *SessionResolver {
	if collection == "" {
		collection = "sessions"
	}
	return &SessionResolver{col: db.Collection(collection), now: time.Now}
}

type sessionDocument struct {
	Token     string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func (r *SessionResolver) Resolve(ctx context.Context, credential string) (string, error) {
	token := strings.TrimSpace(credential)
	if token == "" {
		return "", auth.ErrCredentialRequired
	}
	var doc sessionDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": token}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return "", auth.ErrSessionNotFound
		}
		return "", err
	}
	session := auth.Session{Token: doc.Token, UserID: doc.UserID, ExpiresAt: doc.ExpiresAt}
	if !session.Active(r.now()) {
		return "", auth.ErrSessionExpired
	}
	return session.UserID, nil
}

var _ auth.Resolver = (*SessionResolver)(nil)
