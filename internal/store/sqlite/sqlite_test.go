package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
	"github.com/zhouzirui/z-arena/backend/internal/store"
	"github.com/zhouzirui/z-arena/backend/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "arena.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.db")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, "persistence")
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, chat.Message{ConversationID: conv.ID, Sender: chat.SenderCritic, Content: "still here"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	messages, err := reopened.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "still here", messages[0].Content)
	assert.Equal(t, chat.SenderCritic, messages[0].Sender)
}

func TestSQLiteStoreRejectsUnknownSender(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "constraints")
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, chat.Message{ConversationID: conv.ID, Sender: "narrator", Content: "x"})
	assert.Error(t, err)
}
