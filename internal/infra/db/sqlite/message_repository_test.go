package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/domain/messages"
	"chatrelay/internal/domain/messages/messagestest"
)

func openTemp(t *testing.T) *MessageRepository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestMessageRepositoryContract(t *testing.T) {
	messagestest.RunRepositoryContract(t, func(t *testing.T) messages.Repository {
		return openTemp(t)
	})
}

func TestTimestampsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	repo, err := Open(path)
	require.NoError(t, err)
	at := time.Date(2024, 6, 1, 12, 30, 0, 123456789, time.UTC)
	repo.now = func() time.Time { return at }

	d, err := messages.NewDraft("alice", "bob", "", "https://img/1.png")
	require.NoError(t, err)
	created, err := repo.Create(context.Background(), d)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	conv, err := reopened.FindConversation(context.Background(), messages.PairFilter{A: "bob", B: "alice"})
	require.NoError(t, err)
	require.Len(t, conv, 1)
	assert.Equal(t, created, conv[0])
}
