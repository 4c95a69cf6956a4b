package messaging

import (
	"context"
	"strings"

	"chatrelay/internal/domain/messages"
)

const HistoryKey = "message.history"

// HistoryQuery loads the conversation between the viewer and a counterpart.
type HistoryQuery struct {
	ViewerID      string
	CounterpartID string
}

func (HistoryQuery) Key() string { return HistoryKey }

func (q HistoryQuery) ActorID() string { return q.ViewerID }

type HistoryHandler struct {
	Messages messages.Repository
}

func (h HistoryHandler) Handle(ctx context.Context, q HistoryQuery) ([]messages.Message, error) {
	viewer, counterpart := strings.TrimSpace(q.ViewerID), strings.TrimSpace(q.CounterpartID)
	if err := messages.ValidateParticipants(viewer, counterpart); err != nil {
		return nil, err
	}
	out, err := h.Messages.FindConversation(ctx, messages.PairFilter{A: viewer, B: counterpart})
	if err != nil {
		return nil, messages.WrapStorage("find conversation", err)
	}
	if out == nil {
		out = []messages.Message{}
	}
	return out, nil
}
