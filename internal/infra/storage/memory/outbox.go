package memory

import (
	"context"
	"log/slog"
	"sync"

	appoutbox "chatrelay/internal/app/outbox"
)

// DefaultOutboxLimit bounds the number of records kept while the broker is
// unreachable.
const DefaultOutboxLimit = 10000

// Outbox buffers records in memory and hands them to the publisher on Flush.
// Records that fail to publish stay queued for the next flush; once the
// backlog exceeds the limit the oldest records are dropped.
type Outbox struct {
	mu        sync.Mutex
	pending   []appoutbox.EventRecord
	flushing  bool
	publisher appoutbox.Publisher
	limit     int
	logger    *slog.Logger
}

type OutboxOption func(*Outbox)

func WithOutboxLimit(n int) OutboxOption {
	return func(o *Outbox) {
		if n > 0 {
			o.limit = n
		}
	}
}

func WithOutboxLogger(logger *slog.Logger) OutboxOption {
	return func(o *Outbox) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOutbox returns a buffer; a nil publisher discards records on flush.
func NewOutbox(publisher appoutbox.Publisher, opts ...OutboxOption) *Outbox {
	o := &Outbox{publisher: publisher, limit: DefaultOutboxLimit, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, record)
	o.trimLocked()
	return nil
}

// Flush publishes everything queued, including records added while it runs.
// The lock is released during Publish; a concurrent Flush returns at once and
// leaves its records to the running one.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.flushing {
		return nil
	}
	o.flushing = true
	defer func() { o.flushing = false }()

	for len(o.pending) > 0 {
		batch := o.pending
		o.pending = nil

		o.mu.Unlock()
		sent, err := o.publish(ctx, batch)
		o.mu.Lock()

		if err != nil {
			o.pending = append(batch[sent:len(batch):len(batch)], o.pending...)
			o.trimLocked()
			return err
		}
	}
	o.pending = nil
	return nil
}

func (o *Outbox) publish(ctx context.Context, batch []appoutbox.EventRecord) (int, error) {
	if o.publisher == nil {
		return len(batch), nil
	}
	for i, rec := range batch {
		if err := o.publisher.Publish(ctx, rec); err != nil {
			return i, err
		}
	}
	return len(batch), nil
}

func (o *Outbox) trimLocked() {
	over := len(o.pending) - o.limit
	if over <= 0 {
		return
	}
	o.logger.Warn("outbox backlog full, dropping oldest events",
		"dropped", over, "first_event_id", o.pending[0].ID, "limit", o.limit)
	o.pending = append([]appoutbox.EventRecord(nil), o.pending[over:]...)
}

// Pending reports how many records await publishing.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

var _ appoutbox.Outbox = (*Outbox)(nil)
