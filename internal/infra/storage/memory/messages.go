package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/domain/messages"
)

// MessageRepository keeps messages in insertion order. Suitable for tests and
// single-process demos.
type MessageRepository struct {
	mu    sync.RWMutex
	items []messages.Message
	now   func() time.Time
	newID func() string
}

type MessageOption func(*MessageRepository)

func WithClock(now func() time.Time) MessageOption {
	return func(r *MessageRepository) { r.now = now }
}

func WithIDGenerator(gen func() string) MessageOption {
	return func(r *MessageRepository) { r.newID = gen }
}

func NewMessageRepository(opts ...MessageOption) *MessageRepository {
	r := &MessageRepository{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MessageRepository) Create(ctx context.Context, draft messages.Draft) (messages.Message, error) {
	if err := ctx.Err(); err != nil {
		return messages.Message{}, err
	}
	if err := draft.Validate(); err != nil {
		return messages.Message{}, err
	}
	msg := messages.Message{
		ID:         r.newID(),
		SenderID:   draft.SenderID,
		ReceiverID: draft.ReceiverID,
		Text:       draft.Text,
		ImageRef:   draft.ImageRef,
		CreatedAt:  r.now().UTC(),
	}
	r.mu.Lock()
	r.items = append(r.items, msg)
	r.mu.Unlock()
	return msg, nil
}

func (r *MessageRepository) FindConversation(ctx context.Context, pair messages.PairFilter) ([]messages.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]messages.Message, 0)
	for _, m := range r.items {
		if pair.Matches(m) {
			out = append(out, m)
		}
	}
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, filter messages.ReadFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for i := range r.items {
		m := &r.items[i]
		if !m.IsRead && m.ReceiverID == filter.OwnerID && m.SenderID == filter.CounterpartID {
			m.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (r *MessageRepository) UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, m := range r.items {
		if !m.IsRead && m.ReceiverID == viewerID {
			counts[m.SenderID]++
		}
	}
	return counts, nil
}

func (r *MessageRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

var _ messages.Repository = (*MessageRepository)(nil)
