package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"chatrelay/internal/app/outbox"
	"chatrelay/internal/domain/messages"
)

const MarkReadKey = "message.markRead"

// MarkReadCommand flips every unread message CounterpartID sent to OwnerID.
type MarkReadCommand struct {
	OwnerID       string
	CounterpartID string
}

func (MarkReadCommand) Key() string { return MarkReadKey }

func (c MarkReadCommand) ActorID() string { return c.OwnerID }

type MarkReadHandler struct {
	Messages messages.Repository
	Outbox   outbox.Outbox
	Encoder  outbox.EventEncoder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Handle returns the number of messages that changed. Repeating the call
// returns zero.
func (h MarkReadHandler) Handle(ctx context.Context, cmd MarkReadCommand) (int64, error) {
	filter := messages.ReadFilter{
		OwnerID:       strings.TrimSpace(cmd.OwnerID),
		CounterpartID: strings.TrimSpace(cmd.CounterpartID),
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	updated, err := h.Messages.MarkRead(ctx, filter)
	if err != nil {
		return 0, messages.WrapStorage("mark read", err)
	}
	if updated > 0 {
		now := time.Now
		if h.Now != nil {
			now = h.Now
		}
		if err := outbox.Record(ctx, h.Outbox, h.Encoder, messages.NewConversationRead(filter, updated, now())); err != nil && h.Logger != nil {
			h.Logger.WarnContext(ctx, "record read event", "owner_id", filter.OwnerID, "error", err)
		}
	}
	return updated, nil
}
