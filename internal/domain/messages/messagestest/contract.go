// Package messagestest holds the behavioural suite every messages.Repository
// driver must pass.
package messagestest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/domain/messages"
)

// RunRepositoryContract exercises repo created fresh for every subtest.
func RunRepositoryContract(t *testing.T, newRepo func(t *testing.T) messages.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("create assigns id and timestamp", func(t *testing.T) {
		repo := newRepo(t)
		msg, err := repo.Create(ctx, draft(t, "alice", "bob", "hi", ""))
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.CreatedAt.IsZero())
		assert.False(t, msg.IsRead)
		assert.Equal(t, "alice", msg.SenderID)
		assert.Equal(t, "bob", msg.ReceiverID)
		assert.Equal(t, "hi", msg.Text)
	})

	t.Run("image only message", func(t *testing.T) {
		repo := newRepo(t)
		msg, err := repo.Create(ctx, draft(t, "alice", "bob", "", "https://cdn/img.png"))
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/img.png", msg.ImageRef)
		assert.Empty(t, msg.Text)
	})

	t.Run("conversation is symmetric and ordered", func(t *testing.T) {
		repo := newRepo(t)
		texts := []string{"one", "two", "three", "four", "five"}
		for i, text := range texts {
			from, to := "alice", "bob"
			if i%2 == 1 {
				from, to = to, from
			}
			_, err := repo.Create(ctx, draft(t, from, to, text, ""))
			require.NoError(t, err)
		}
		_, err := repo.Create(ctx, draft(t, "alice", "carol", "other", ""))
		require.NoError(t, err)

		ab, err := repo.FindConversation(ctx, messages.PairFilter{A: "alice", B: "bob"})
		require.NoError(t, err)
		ba, err := repo.FindConversation(ctx, messages.PairFilter{A: "bob", B: "alice"})
		require.NoError(t, err)

		require.Len(t, ab, len(texts))
		assert.Equal(t, ab, ba)
		for i, msg := range ab {
			assert.Equal(t, texts[i], msg.Text)
			if i > 0 {
				assert.False(t, msg.CreatedAt.Before(ab[i-1].CreatedAt))
			}
		}
	})

	t.Run("empty conversation", func(t *testing.T) {
		repo := newRepo(t)
		out, err := repo.FindConversation(ctx, messages.PairFilter{A: "x", B: "y"})
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("mark read is directional and idempotent", func(t *testing.T) {
		repo := newRepo(t)
		for _, text := range []string{"a", "b", "c"} {
			_, err := repo.Create(ctx, draft(t, "alice", "bob", text, ""))
			require.NoError(t, err)
		}
		_, err := repo.Create(ctx, draft(t, "bob", "alice", "reply", ""))
		require.NoError(t, err)

		n, err := repo.MarkRead(ctx, messages.ReadFilter{OwnerID: "bob", CounterpartID: "alice"})
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		n, err = repo.MarkRead(ctx, messages.ReadFilter{OwnerID: "bob", CounterpartID: "alice"})
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		bobCounts, err := repo.UnreadCounts(ctx, "bob")
		require.NoError(t, err)
		assert.Zero(t, bobCounts["alice"])

		aliceCounts, err := repo.UnreadCounts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 1, aliceCounts["bob"])

		conv, err := repo.FindConversation(ctx, messages.PairFilter{A: "alice", B: "bob"})
		require.NoError(t, err)
		for _, msg := range conv {
			assert.Equal(t, msg.ReceiverID == "bob", msg.IsRead, msg.Text)
		}
	})

	t.Run("unread counts group by sender", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 2; i++ {
			_, err := repo.Create(ctx, draft(t, "alice", "bob", "from alice", ""))
			require.NoError(t, err)
		}
		_, err := repo.Create(ctx, draft(t, "carol", "bob", "from carol", ""))
		require.NoError(t, err)
		_, err = repo.Create(ctx, draft(t, "bob", "alice", "from bob", ""))
		require.NoError(t, err)

		counts, err := repo.UnreadCounts(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"alice": 2, "carol": 1}, counts)

		empty, err := repo.UnreadCounts(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, newRepo(t).Ping(ctx))
	})
}

func draft(t *testing.T, from, to, text, image string) messages.Draft {
	t.Helper()
	d, err := messages.NewDraft(from, to, text, image)
	require.NoError(t, err)
	return d
}
