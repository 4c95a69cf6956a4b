package realtime

import (
	"context"
	"log/slog"
)

// Relay forwards typing indicators between live connections. Nothing it
// handles is persisted.
type Relay struct {
	Registry *Registry
	Logger   *slog.Logger
}

func (r Relay) Start(ctx context.Context, senderID, receiverID string) {
	r.forward(ctx, EventTypingStart, senderID, receiverID)
}

func (r Relay) Stop(ctx context.Context, senderID, receiverID string) {
	r.forward(ctx, EventTypingStop, senderID, receiverID)
}

func (r Relay) forward(ctx context.Context, typ, senderID, receiverID string) {
	if senderID == "" || receiverID == "" || senderID == receiverID {
		return
	}
	conn, ok := r.Registry.Lookup(receiverID)
	if !ok {
		return
	}
	env, err := NewEnvelope(typ, "", TypingPayload{SenderID: senderID})
	if err != nil {
		return
	}
	if err := conn.Send(env); err != nil && r.Logger != nil {
		r.Logger.DebugContext(ctx, "typing signal dropped", "type", typ, "receiver_id", receiverID, "error", err)
	}
}
