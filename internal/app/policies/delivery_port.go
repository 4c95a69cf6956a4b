package policies

import (
	"context"
	"errors"

	"chatrelay/internal/domain/messages"
)

// ErrRecipientOffline is returned by a MessagePusher when the receiver has no
// registered connection.
var ErrRecipientOffline = errors.New("policies: recipient offline")

// MessagePusher delivers a persisted message to the receiver's live connection.
type MessagePusher interface {
	PushMessage(ctx context.Context, receiverID string, msg messages.Message) error
}
