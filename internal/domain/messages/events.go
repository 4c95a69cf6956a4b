package messages

import (
	"time"

	"chatrelay/internal/domain/shared/events"
)

const (
	EventMessageCreated   = "message.created"
	EventConversationRead = "message.read"
)

type MessageCreated struct {
	events.BaseEvent
	Message Message `json:"message"`
}

func NewMessageCreated(msg Message) MessageCreated {
	return MessageCreated{
		BaseEvent: events.NewBase(EventMessageCreated, PairFilter{A: msg.SenderID, B: msg.ReceiverID}.Key(), msg.CreatedAt),
		Message:   msg,
	}
}

type ConversationRead struct {
	events.BaseEvent
	OwnerID       string `json:"owner_id"`
	CounterpartID string `json:"counterpart_id"`
	Updated       int64  `json:"updated"`
}

func NewConversationRead(filter ReadFilter, updated int64, at time.Time) ConversationRead {
	return ConversationRead{
		BaseEvent:     events.NewBase(EventConversationRead, PairFilter{A: filter.OwnerID, B: filter.CounterpartID}.Key(), at),
		OwnerID:       filter.OwnerID,
		CounterpartID: filter.CounterpartID,
		Updated:       updated,
	}
}
