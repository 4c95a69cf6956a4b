package scylla

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/gocql/gocql"

	"chatrelay/internal/domain/messages"
)

var errNoSession = errors.New("scylla session not initialized")

// MessageRepository implements messages.Repository on two tables kept in
// step with logged batches.
type MessageRepository struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewMessageRepository(session *gocql.Session, logger *slog.Logger) *MessageRepository {
	return &MessageRepository{session: session, logger: logger}
}

func (r *MessageRepository) Create(ctx context.Context, draft messages.Draft) (messages.Message, error) {
	if r.session == nil {
		return messages.Message{}, errNoSession
	}
	if err := draft.Validate(); err != nil {
		return messages.Message{}, err
	}
	id := gocql.TimeUUID()
	msg := messages.Message{
		ID:         id.String(),
		SenderID:   draft.SenderID,
		ReceiverID: draft.ReceiverID,
		Text:       draft.Text,
		ImageRef:   draft.ImageRef,
		CreatedAt:  id.Time().UTC().Truncate(time.Millisecond),
	}
	pair := messages.PairFilter{A: msg.SenderID, B: msg.ReceiverID}.Key()

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO messages_by_pair (pair_key, message_id, sender_id, receiver_id, text, image_ref, is_read, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pair, id, msg.SenderID, msg.ReceiverID, msg.Text, msg.ImageRef, false, msg.CreatedAt)
	batch.Query(`INSERT INTO unread_by_receiver (receiver_id, sender_id, message_id) VALUES (?, ?, ?)`,
		msg.ReceiverID, msg.SenderID, id)
	if err := r.session.ExecuteBatch(batch); err != nil {
		return messages.Message{}, err
	}
	return msg, nil
}

func (r *MessageRepository) FindConversation(ctx context.Context, pair messages.PairFilter) ([]messages.Message, error) {
	if r.session == nil {
		return nil, errNoSession
	}
	iter := r.session.
		Query(`SELECT message_id, sender_id, receiver_id, text, image_ref, is_read, created_at FROM messages_by_pair WHERE pair_key = ?`, pair.Key()).
		WithContext(ctx).
		Iter()

	var (
		id               gocql.UUID
		sender, receiver string
		text, imageRef   string
		isRead           bool
		createdAt        time.Time
	)
	out := make([]messages.Message, 0)
	for iter.Scan(&id, &sender, &receiver, &text, &imageRef, &isRead, &createdAt) {
		out = append(out, messages.Message{
			ID:         id.String(),
			SenderID:   sender,
			ReceiverID: receiver,
			Text:       text,
			ImageRef:   imageRef,
			IsRead:     isRead,
			CreatedAt:  createdAt.UTC(),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// markReadChunk bounds how many messages one logged batch touches; each
// message adds two statements.
const markReadChunk = 50

// MarkRead is idempotent: the unread index rows are removed in the same batch
// that flips the flags, so a repeated call finds nothing. Large backlogs are
// written in several batches; a failure leaves the remaining rows unread for
// the next call.
func (r *MessageRepository) MarkRead(ctx context.Context, filter messages.ReadFilter) (int64, error) {
	if r.session == nil {
		return 0, errNoSession
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	iter := r.session.
		Query(`SELECT message_id FROM unread_by_receiver WHERE receiver_id = ? AND sender_id = ?`, filter.OwnerID, filter.CounterpartID).
		WithContext(ctx).
		Iter()
	var (
		id  gocql.UUID
		ids []gocql.UUID
	)
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pair := messages.PairFilter{A: filter.OwnerID, B: filter.CounterpartID}.Key()
	var updated int64
	for _, chunk := range chunkIDs(ids, markReadChunk) {
		batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
		for _, mid := range chunk {
			batch.Query(`UPDATE messages_by_pair SET is_read = true WHERE pair_key = ? AND message_id = ?`, pair, mid)
			batch.Query(`DELETE FROM unread_by_receiver WHERE receiver_id = ? AND sender_id = ? AND message_id = ?`, filter.OwnerID, filter.CounterpartID, mid)
		}
		if err := r.session.ExecuteBatch(batch); err != nil {
			return updated, err
		}
		updated += int64(len(chunk))
	}
	if r.logger != nil {
		r.logger.DebugContext(ctx, "marked read", "owner_id", filter.OwnerID, "counterpart_id", filter.CounterpartID, "updated", updated)
	}
	return updated, nil
}

func chunkIDs(ids []gocql.UUID, size int) [][]gocql.UUID {
	return slices.Collect(slices.Chunk(ids, size))
}

func (r *MessageRepository) UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	if r.session == nil {
		return nil, errNoSession
	}
	iter := r.session.
		Query(`SELECT sender_id FROM unread_by_receiver WHERE receiver_id = ?`, viewerID).
		WithContext(ctx).
		Iter()
	counts := make(map[string]int)
	var sender string
	for iter.Scan(&sender) {
		counts[sender]++
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *MessageRepository) Ping(ctx context.Context) error {
	if r.session == nil {
		return errNoSession
	}
	return r.session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Exec()
}

var _ messages.Repository = (*MessageRepository)(nil)
