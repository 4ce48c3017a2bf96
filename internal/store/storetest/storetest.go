// Package storetest holds the behaviour suite shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
	"github.com/zhouzirui/z-arena/backend/internal/store"
)

// Run exercises a fresh store returned by factory.
func Run(t *testing.T, factory func(t *testing.T) store.Store) {
	t.Run("ConversationRoundTrip", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, "Is remote work better?")
		require.NoError(t, err)
		require.NotEmpty(t, conv.ID)
		assert.False(t, conv.CreatedAt.IsZero())

		got, err := s.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, conv.ID, got.ID)
		assert.Equal(t, "Is remote work better?", got.Topic)
	})

	t.Run("MissingConversation", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		_, err := s.GetConversation(ctx, "00000000-0000-0000-0000-000000000000")
		assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

		_, err = s.CreateMessage(ctx, chat.Message{
			ConversationID: "00000000-0000-0000-0000-000000000000",
			Sender:         chat.SenderUser,
			Content:        "orphan",
		})
		assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("MessagesKeepInsertionOrder", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, "ordering")
		require.NoError(t, err)

		// Identical timestamps must still come back in insertion order.
		at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		inputs := []chat.Message{
			{ConversationID: conv.ID, Sender: chat.SenderUser, Content: "first", CreatedAt: at},
			{ConversationID: conv.ID, Sender: chat.SenderDefender, Content: "second", CreatedAt: at},
			{ConversationID: conv.ID, Sender: chat.SenderUser, Content: "psst", IsWhisper: true, TargetRole: "critic", CreatedAt: at},
			{ConversationID: conv.ID, Sender: chat.SenderCritic, Content: "third", CreatedAt: at},
		}
		for _, msg := range inputs {
			stored, err := s.CreateMessage(ctx, msg)
			require.NoError(t, err)
			assert.NotEmpty(t, stored.ID)
		}

		messages, err := s.ListMessages(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, messages, 4)

		contents := make([]string, 0, len(messages))
		for _, msg := range messages {
			contents = append(contents, msg.Content)
		}
		assert.Equal(t, []string{"first", "second", "psst", "third"}, contents)

		whisper := messages[2]
		assert.True(t, whisper.IsWhisper)
		assert.Equal(t, "critic", whisper.TargetRole)
		assert.Equal(t, chat.SenderUser, whisper.Sender)
		assert.Equal(t, conv.ID, whisper.ConversationID)
		assert.True(t, whisper.CreatedAt.Equal(at))
	})

	t.Run("EmptyConversation", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, "quiet")
		require.NoError(t, err)

		messages, err := s.ListMessages(ctx, conv.ID)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})
}
