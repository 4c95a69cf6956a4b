package kafka

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerPublish(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "chat.message.events.v1", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "alice|bob", string(key))
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, "content-type", string(msg.Headers[0].Key))
		return nil
	})

	p := newProducer(mock)
	err := p.Publish(context.Background(), "chat.message.events.v1", "alice|bob", []byte(`{}`), map[string]string{"content-type": "application/json"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducerPublishCanceled(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := newProducer(mock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, "t", "k", nil, nil), context.Canceled)
	require.NoError(t, p.Close())
}
