package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "chatrelay/internal/app/outbox"
)

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type fakeProducer struct {
	out  []published
	fail bool
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.out = append(p.out, published{topic, key, payload, headers})
	return nil
}

type queueStore struct {
	queue  []*ClaimedRecord
	sent   []string
	failed map[string]time.Time
}

func (s *queueStore) Claim(context.Context, string) (*ClaimedRecord, error) {
	if len(s.queue) == 0 {
		return nil, nil
	}
	rec := s.queue[0]
	s.queue = s.queue[1:]
	return rec, nil
}

func (s *queueStore) MarkSent(_ context.Context, id string) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *queueStore) MarkFailed(_ context.Context, id string, next time.Time, _ string) error {
	if s.failed == nil {
		s.failed = map[string]time.Time{}
	}
	s.failed[id] = next
	return nil
}

func record(id string) *ClaimedRecord {
	return &ClaimedRecord{EventRecord: appoutbox.EventRecord{
		ID:         id,
		Name:       "message.created",
		Aggregate:  "alice|bob",
		Payload:    []byte(`{"message":{"id":"m1"}}`),
		OccurredAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "chat.message.events.v1", TopicFor("chat.", "message.created"))
	assert.Equal(t, "message.events.v1", TopicFor("", "message.read"))
	assert.Equal(t, "presence.events.v1", TopicFor("", "presence"))
}

func TestWorkerDrainPublishesCloudEvents(t *testing.T) {
	store := &queueStore{queue: []*ClaimedRecord{record("e1"), record("e2")}}
	prod := &fakeProducer{}
	w := &Worker{Store: store, Producer: prod, TopicPrefix: "chat."}

	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"e1", "e2"}, store.sent)

	require.Len(t, prod.out, 2)
	msg := prod.out[0]
	assert.Equal(t, "chat.message.events.v1", msg.topic)
	assert.Equal(t, "alice|bob", msg.key)
	assert.Equal(t, "application/cloudevents+json", msg.headers["content-type"])

	var evt map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &evt))
	assert.Equal(t, "1.0", evt["specversion"])
	assert.Equal(t, "e1", evt["id"])
	assert.Equal(t, "message.created.v1", evt["type"])
	assert.Equal(t, DefaultSource, evt["source"])
	data, ok := evt["data"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "message")
}

func TestWorkerReschedulesFailures(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := record("e1")
	rec.Attempts = 1
	store := &queueStore{queue: []*ClaimedRecord{rec}}
	w := &Worker{
		Store:    store,
		Producer: &fakeProducer{fail: true},
		Backoff:  []time.Duration{time.Second, 10 * time.Second},
		Now:      func() time.Time { return now },
	}

	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.sent)
	assert.Equal(t, now.Add(10*time.Second), store.failed["e1"])
}

func TestWorkerRequiresDependencies(t *testing.T) {
	assert.ErrorIs(t, (&Worker{}).Run(context.Background()), ErrWorkerNotConfigured)
}

func TestPublisher(t *testing.T) {
	prod := &fakeProducer{}
	p := Publisher{Producer: prod, TopicPrefix: "x.", Source: "app://test"}
	require.NoError(t, p.Publish(context.Background(), record("e9").EventRecord))
	require.Len(t, prod.out, 1)
	assert.Equal(t, "x.message.events.v1", prod.out[0].topic)
	assert.Equal(t, "e9", prod.out[0].headers["ce-id"])
}
