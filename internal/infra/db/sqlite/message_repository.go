package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"chatrelay/internal/domain/messages"
)

// MessageRepository stores messages in a single SQLite file. created_at holds
// unix nanoseconds; seq breaks ties in insertion order.
type MessageRepository struct {
	conn *sql.DB
	now  func() time.Time
}

func Open(path string) (*MessageRepository, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	repo := &MessageRepository{conn: conn, now: time.Now}
	if err := repo.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	return repo, nil
}

func (r *MessageRepository) Close() error {
	return r.conn.Close()
}

func (r *MessageRepository) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			image_ref TEXT NOT NULL DEFAULT '',
			is_read INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id, is_read, sender_id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *MessageRepository) Create(ctx context.Context, draft messages.Draft) (messages.Message, error) {
	if err := draft.Validate(); err != nil {
		return messages.Message{}, err
	}
	msg := messages.Message{
		ID:         uuid.NewString(),
		SenderID:   draft.SenderID,
		ReceiverID: draft.ReceiverID,
		Text:       draft.Text,
		ImageRef:   draft.ImageRef,
		CreatedAt:  r.now().UTC(),
	}
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, text, image_ref, is_read, created_at) VALUES (?, ?, ?, ?, ?, 0, ?)`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.ImageRef, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return messages.Message{}, err
	}
	return msg, nil
}

func (r *MessageRepository) FindConversation(ctx context.Context, pair messages.PairFilter) ([]messages.Message, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, sender_id, receiver_id, text, image_ref, is_read, created_at FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, seq ASC`,
		pair.A, pair.B, pair.B, pair.A,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]messages.Message, 0)
	for rows.Next() {
		var (
			msg       messages.Message
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Text, &msg.ImageRef, &msg.IsRead, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (r *MessageRepository) MarkRead(ctx context.Context, filter messages.ReadFilter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	res, err := r.conn.ExecContext(ctx,
		`UPDATE messages SET is_read = 1 WHERE receiver_id = ? AND sender_id = ? AND is_read = 0`,
		filter.OwnerID, filter.CounterpartID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *MessageRepository) UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT sender_id, COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0 GROUP BY sender_id`,
		viewerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			sender string
			n      int
		)
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, err
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}

func (r *MessageRepository) Ping(ctx context.Context) error {
	return r.conn.PingContext(ctx)
}

var _ messages.Repository = (*MessageRepository)(nil)
