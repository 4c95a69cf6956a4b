package scylla

import (
	"context"
	"strings"
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/domain/messages"
)

func TestSchemaAvoidsFiltering(t *testing.T) {
	stmts := schema("chat")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "chat.messages_by_pair")
	assert.Contains(t, stmts[0], "CLUSTERING ORDER BY (message_id ASC)")
	assert.Contains(t, stmts[1], "PRIMARY KEY ((receiver_id), sender_id, message_id)")
	for _, s := range stmts {
		assert.False(t, strings.Contains(strings.ToUpper(s), "ALLOW FILTERING"))
	}
}

func TestRepositoryWithoutSession(t *testing.T) {
	repo := NewMessageRepository(nil, nil)
	_, err := repo.Create(context.Background(), messages.Draft{SenderID: "a", ReceiverID: "b", Text: "x"})
	assert.ErrorIs(t, err, errNoSession)
	assert.ErrorIs(t, repo.Ping(context.Background()), errNoSession)
}

func TestMarkReadChunksLargeBacklogs(t *testing.T) {
	ids := make([]gocql.UUID, 2*markReadChunk+3)
	for i := range ids {
		ids[i] = gocql.TimeUUID()
	}

	chunks := chunkIDs(ids, markReadChunk)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], markReadChunk)
	assert.Len(t, chunks[1], markReadChunk)
	assert.Len(t, chunks[2], 3)
	assert.Equal(t, ids[markReadChunk], chunks[1][0])
	assert.Empty(t, chunkIDs(nil, markReadChunk))
}
