package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidPayload      = errors.New("messages: text or image is required")
	ErrParticipantRequired = errors.New("messages: sender and receiver are required")
	ErrSelfMessage         = errors.New("messages: cannot message yourself")
	ErrCounterpartRequired = errors.New("messages: counterpart is required")
)

// StorageError reports a failure of the durable store. The operation that
// produced it left no partial state behind.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("messages: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// WrapStorage returns nil for a nil err.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err originates from the message store.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Message is a persisted direct message.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Text       string    `json:"text,omitempty"`
	ImageRef   string    `json:"image_ref,omitempty"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// Draft is a message that has not been persisted yet. The store assigns the id
// and the creation timestamp.
type Draft struct {
	SenderID   string
	ReceiverID string
	Text       string
	ImageRef   string
}

// NewDraft normalizes the input and validates it.
func NewDraft(senderID, receiverID, text, imageRef string) (Draft, error) {
	d := Draft{
		SenderID:   strings.TrimSpace(senderID),
		ReceiverID: strings.TrimSpace(receiverID),
		Text:       strings.TrimSpace(text),
		ImageRef:   strings.TrimSpace(imageRef),
	}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func (d Draft) Validate() error {
	if err := ValidateParticipants(d.SenderID, d.ReceiverID); err != nil {
		return err
	}
	if strings.TrimSpace(d.Text) == "" && strings.TrimSpace(d.ImageRef) == "" {
		return ErrInvalidPayload
	}
	return nil
}

func ValidateParticipants(senderID, receiverID string) error {
	if strings.TrimSpace(senderID) == "" || strings.TrimSpace(receiverID) == "" {
		return ErrParticipantRequired
	}
	if senderID == receiverID {
		return ErrSelfMessage
	}
	return nil
}

// PairFilter selects the conversation between two users regardless of direction.
type PairFilter struct {
	A string
	B string
}

func (f PairFilter) Matches(m Message) bool {
	return (m.SenderID == f.A || m.SenderID == f.B) && (m.ReceiverID == f.A || m.ReceiverID == f.B)
}

// Key is a direction-independent identifier of the pair.
func (f PairFilter) Key() string {
	if f.A <= f.B {
		return f.A + "|" + f.B
	}
	return f.B + "|" + f.A
}

// ReadFilter selects the unread messages sent by CounterpartID to OwnerID.
type ReadFilter struct {
	OwnerID       string
	CounterpartID string
}

func (f ReadFilter) Validate() error {
	if strings.TrimSpace(f.OwnerID) == "" || strings.TrimSpace(f.CounterpartID) == "" {
		return ErrCounterpartRequired
	}
	return nil
}

// Repository is the durable message store.
type Repository interface {
	// Create atomically persists the draft, generating id and timestamp.
	Create(ctx context.Context, draft Draft) (Message, error)
	// FindConversation returns the pair's messages ordered by creation time, ties by insertion order.
	FindConversation(ctx context.Context, pair PairFilter) ([]Message, error)
	// MarkRead flips every unread message matching the filter and returns how many changed.
	MarkRead(ctx context.Context, filter ReadFilter) (int64, error)
	// UnreadCounts groups the viewer's unread messages by sender.
	UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error)
	Ping(ctx context.Context) error
}
