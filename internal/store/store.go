// Package store persists debate conversations and their finished turns.
package store

import (
	"context"
	"errors"

	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store is the storage collaborator used by the debate service and the
// conversation handlers. Implementations must be safe for concurrent use.
type Store interface {
	CreateConversation(ctx context.Context, topic string) (chat.Conversation, error)
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	// CreateMessage assigns ID and CreatedAt when they are empty and
	// returns the stored record.
	CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error)
	// ListMessages returns turns in insertion order.
	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
	Close() error
}
