package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chatrelay/internal/app/commands"
	"chatrelay/internal/app/handlers/messaging"
	"chatrelay/internal/app/policies"
	"chatrelay/internal/domain/auth"
	"chatrelay/internal/domain/messages"
)

// Command is one of the live-session inputs the hub reacts to.
type Command interface {
	hubCommand()
}

type Connect struct {
	UserID string
	Conn   Conn
}

type Disconnect struct {
	UserID string
	Conn   Conn
}

// Send asks to persist and deliver a message; the reply goes to Conn.
type Send struct {
	UserID  string
	Conn    Conn
	Ref     string
	Request SendRequest
}

type TypingStart struct {
	UserID     string
	ReceiverID string
}

type TypingStop struct {
	UserID     string
	ReceiverID string
}

type MarkRead struct {
	UserID        string
	Conn          Conn
	Ref           string
	CounterpartID string
}

func (Connect) hubCommand()     {}
func (Disconnect) hubCommand()  {}
func (Send) hubCommand()        {}
func (TypingStart) hubCommand() {}
func (TypingStop) hubCommand()  {}
func (MarkRead) hubCommand()    {}

// Hub ties the registry, presence, the typing relay and the message router
// together for live connections.
type Hub struct {
	registry *Registry
	presence Presence
	relay    Relay
	commands commands.Bus
	logger   *slog.Logger
}

func NewHub(registry *Registry, bus commands.Bus, logger *slog.Logger) *Hub {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry: registry,
		presence: Presence{Registry: registry, Logger: logger},
		relay:    Relay{Registry: registry, Logger: logger},
		commands: bus,
		logger:   logger,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

// SetCommandBus completes wiring when the bus is built after the hub.
func (h *Hub) SetCommandBus(bus commands.Bus) { h.commands = bus }

func (h *Hub) Handle(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case Connect:
		return h.connect(ctx, c)
	case Disconnect:
		if h.registry.Unregister(c.UserID, c.Conn) {
			h.presence.Broadcast(ctx)
		}
		return nil
	case TypingStart:
		h.relay.Start(ctx, c.UserID, c.ReceiverID)
		return nil
	case TypingStop:
		h.relay.Stop(ctx, c.UserID, c.ReceiverID)
		return nil
	case Send:
		return h.send(ctx, c)
	case MarkRead:
		return h.markRead(ctx, c)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, cmd)
	}
}

func (h *Hub) connect(ctx context.Context, c Connect) error {
	if strings.TrimSpace(c.UserID) == "" || c.Conn == nil {
		return auth.ErrUnauthenticated
	}
	if prev := h.registry.Register(c.UserID, c.Conn); prev != nil {
		h.logger.InfoContext(ctx, "session replaced", "user_id", c.UserID, "conn_id", prev.ID())
		if env, err := NewEnvelope(EventSessionReplaced, "", nil); err == nil {
			_ = prev.Send(env)
		}
		_ = prev.Close()
	}
	h.presence.Broadcast(ctx)
	return nil
}

func (h *Hub) send(ctx context.Context, c Send) error {
	msg, err := commands.Dispatch[messaging.SendMessageCommand, messages.Message](ctx, h.commands, messaging.SendMessageCommand{
		SenderID:    c.UserID,
		ReceiverID:  c.Request.ReceiverID,
		Text:        c.Request.Text,
		ImageRef:    c.Request.ImageRef,
		InlineImage: c.Request.Image,
	})
	if err != nil {
		h.replyError(ctx, c.Conn, c.Ref, err)
		return nil
	}
	h.reply(ctx, c.Conn, EventMessageSent, c.Ref, msg)
	return nil
}

func (h *Hub) markRead(ctx context.Context, c MarkRead) error {
	updated, err := commands.Dispatch[messaging.MarkReadCommand, int64](ctx, h.commands, messaging.MarkReadCommand{
		OwnerID:       c.UserID,
		CounterpartID: c.CounterpartID,
	})
	if err != nil {
		h.replyError(ctx, c.Conn, c.Ref, err)
		return nil
	}
	h.reply(ctx, c.Conn, EventMessageRead, c.Ref, MarkReadResult{CounterpartID: c.CounterpartID, Updated: updated})
	return nil
}

// PushMessage delivers msg as message.new to the receiver's live connection.
func (h *Hub) PushMessage(ctx context.Context, receiverID string, msg messages.Message) error {
	conn, ok := h.registry.Lookup(receiverID)
	if !ok {
		return policies.ErrRecipientOffline
	}
	env, err := NewEnvelope(EventMessageNew, "", msg)
	if err != nil {
		return err
	}
	return conn.Send(env)
}

// Presence returns the current online snapshot.
func (h *Hub) Presence() PresencePayload {
	return h.registry.Snapshot()
}

func (h *Hub) reply(ctx context.Context, conn Conn, typ, ref string, data any) {
	if conn == nil {
		return
	}
	env, err := NewEnvelope(typ, ref, data)
	if err != nil {
		h.logger.ErrorContext(ctx, "encode reply", "type", typ, "error", err)
		return
	}
	if err := conn.Send(env); err != nil {
		h.logger.DebugContext(ctx, "reply dropped", "type", typ, "conn_id", conn.ID(), "error", err)
	}
}

func (h *Hub) replyError(ctx context.Context, conn Conn, ref string, err error) {
	code := ErrorCode(err)
	msg := err.Error()
	if code == CodeStorage {
		h.logger.ErrorContext(ctx, "live command failed", "error", err)
		msg = "message could not be stored"
	}
	h.reply(ctx, conn, EventError, ref, ErrorPayload{Code: code, Message: msg})
}

// ErrorCode maps a command error to the code reported to clients.
func ErrorCode(err error) string {
	switch {
	case messages.IsStorage(err):
		return CodeStorage
	case errors.Is(err, messages.ErrInvalidPayload),
		errors.Is(err, messages.ErrParticipantRequired),
		errors.Is(err, messages.ErrSelfMessage),
		errors.Is(err, messages.ErrCounterpartRequired):
		return CodeInvalidPayload
	default:
		return CodeBadRequest
	}
}

var _ policies.MessagePusher = (*Hub)(nil)
