package messaging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"chatrelay/internal/app/outbox"
	"chatrelay/internal/app/policies"
	"chatrelay/internal/domain/messages"
)

const SendMessageKey = "message.send"

var ErrUploaderUnavailable = errors.New("messaging: image uploader not configured")

// SendMessageCommand persists a message and pushes it to the receiver.
// InlineImage is a data URL uploaded before persisting; its URL becomes ImageRef.
type SendMessageCommand struct {
	SenderID    string
	ReceiverID  string
	Text        string
	ImageRef    string
	InlineImage string
	RequestKey  string
}

func (SendMessageCommand) Key() string { return SendMessageKey }

func (c SendMessageCommand) ActorID() string { return c.SenderID }

// IdempotencyKey is scoped to the sender so two users cannot collide.
func (c SendMessageCommand) IdempotencyKey() string {
	key := strings.TrimSpace(c.RequestKey)
	if key == "" {
		return ""
	}
	return c.SenderID + ":" + key
}

func (SendMessageCommand) ResultPrototype() any { return &messages.Message{} }

type SendMessageHandler struct {
	Messages messages.Repository
	Pusher   policies.MessagePusher
	Uploader policies.ImageUploader
	Outbox   outbox.Outbox
	Encoder  outbox.EventEncoder
	Logger   *slog.Logger
}

func (h SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (messages.Message, error) {
	if h.Messages == nil {
		return messages.Message{}, errors.New("messaging: repository not configured")
	}
	if err := messages.ValidateParticipants(strings.TrimSpace(cmd.SenderID), strings.TrimSpace(cmd.ReceiverID)); err != nil {
		return messages.Message{}, err
	}
	var image *inlineImage
	if strings.TrimSpace(cmd.InlineImage) != "" {
		decoded, err := parseDataURL(cmd.InlineImage)
		if err != nil {
			return messages.Message{}, err
		}
		image = &decoded
	} else if strings.TrimSpace(cmd.Text) == "" && strings.TrimSpace(cmd.ImageRef) == "" {
		return messages.Message{}, messages.ErrInvalidPayload
	}

	imageRef := cmd.ImageRef
	if image != nil {
		url, err := h.upload(ctx, cmd.SenderID, *image)
		if err != nil {
			return messages.Message{}, messages.WrapStorage("upload image", err)
		}
		imageRef = url
	}

	draft, err := messages.NewDraft(cmd.SenderID, cmd.ReceiverID, cmd.Text, imageRef)
	if err != nil {
		return messages.Message{}, err
	}
	msg, err := h.Messages.Create(ctx, draft)
	if err != nil {
		return messages.Message{}, messages.WrapStorage("create", err)
	}

	if err := outbox.Record(ctx, h.Outbox, h.Encoder, messages.NewMessageCreated(msg)); err != nil {
		h.log().WarnContext(ctx, "record message event", "message_id", msg.ID, "error", err)
	}

	if h.Pusher != nil {
		if err := h.Pusher.PushMessage(ctx, msg.ReceiverID, msg); err != nil {
			h.log().DebugContext(ctx, "delivery miss", "message_id", msg.ID, "receiver_id", msg.ReceiverID, "error", err)
		}
	}
	return msg, nil
}

func (h SendMessageHandler) upload(ctx context.Context, senderID string, img inlineImage) (string, error) {
	if h.Uploader == nil {
		return "", ErrUploaderUnavailable
	}
	key := "messages/" + senderID + "/" + uuid.NewString() + img.extension()
	return h.Uploader.Upload(ctx, key, bytes.NewReader(img.data), int64(len(img.data)), img.contentType)
}

func (h SendMessageHandler) log() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
