package realtime

import (
	"fmt"
)

// DecodeClientEnvelope turns a frame received from userID on conn into a hub command.
func DecodeClientEnvelope(userID string, conn Conn, env Envelope) (Command, error) {
	switch env.Type {
	case EventTypingStart, EventTypingStop:
		var req TypingRequest
		if err := env.Decode(&req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if env.Type == EventTypingStart {
			return TypingStart{UserID: userID, ReceiverID: req.ReceiverID}, nil
		}
		return TypingStop{UserID: userID, ReceiverID: req.ReceiverID}, nil
	case EventMessageSend:
		var req SendRequest
		if err := env.Decode(&req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return Send{UserID: userID, Conn: conn, Ref: env.Ref, Request: req}, nil
	case EventMarkRead:
		var req MarkReadRequest
		if err := env.Decode(&req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return MarkRead{UserID: userID, Conn: conn, Ref: env.Ref, CounterpartID: req.CounterpartID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}
