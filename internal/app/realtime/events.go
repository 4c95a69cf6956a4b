package realtime

import (
	"encoding/json"
	"errors"
)

// Event types carried in Envelope.Type.
const (
	EventPresenceUpdate  = "presence.update"
	EventMessageNew      = "message.new"
	EventTypingStart     = "typing.start"
	EventTypingStop      = "typing.stop"
	EventMessageSend     = "message.send"
	EventMessageSent     = "message.sent"
	EventMarkRead        = "message.markRead"
	EventMessageRead     = "message.read"
	EventSessionReplaced = "session.replaced"
	EventError           = "error"
)

// Error codes sent in ErrorPayload.Code.
const (
	CodeInvalidPayload = "invalid_payload"
	CodeStorage        = "storage"
	CodeBadRequest     = "bad_request"
)

var (
	ErrSendBufferFull = errors.New("realtime: send buffer full")
	ErrConnClosed     = errors.New("realtime: connection closed")
	ErrUnknownEvent   = errors.New("realtime: unknown event type")
)

// Envelope is the JSON frame exchanged over a live connection. Ref correlates
// a client command with its reply.
type Envelope struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope of the given type. A nil data
// leaves Data empty.
func NewEnvelope(typ, ref string, data any) (Envelope, error) {
	env := Envelope{Type: typ, Ref: ref}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}

// Decode unmarshals Data into out.
func (e Envelope) Decode(out any) error {
	if len(e.Data) == 0 {
		return errors.New("realtime: empty payload")
	}
	return json.Unmarshal(e.Data, out)
}

type PresencePayload struct {
	Online  []string `json:"online"`
	Version uint64   `json:"version"`
}

// TypingPayload is what the peer receives.
type TypingPayload struct {
	SenderID string `json:"sender_id"`
}

// TypingRequest is what the typing user sends.
type TypingRequest struct {
	ReceiverID string `json:"receiver_id"`
}

type SendRequest struct {
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text,omitempty"`
	ImageRef   string `json:"image_ref,omitempty"`
	Image      string `json:"image,omitempty"`
}

type MarkReadRequest struct {
	CounterpartID string `json:"counterpart_id"`
}

type MarkReadResult struct {
	CounterpartID string `json:"counterpart_id"`
	Updated       int64  `json:"updated"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
