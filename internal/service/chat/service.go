package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
	"github.com/zhouzirui/z-arena/backend/internal/store"
)

var (
	ErrTopicRequired   = errors.New("topic is required")
	ErrContentRequired = errors.New("content is required")
	ErrInvalidSender   = errors.New("sender must be user, defender or critic")
	ErrInvalidWhisper  = errors.New("whispers must come from the user and target defender or critic")
	// ErrConversationNotFound aliases the storage sentinel so handlers need
	// only this package.
	ErrConversationNotFound = store.ErrNotFound
)

// Service encapsulates conversation state management.
type Service struct {
	store store.Store
}

// NewService wraps a storage backend with request validation.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// CreateConversation starts a new debate on topic.
func (s *Service) CreateConversation(ctx context.Context, topic string) (chat.Conversation, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return chat.Conversation{}, ErrTopicRequired
	}
	return s.store.CreateConversation(ctx, topic)
}

// GetConversation retrieves a conversation by identifier.
func (s *Service) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// SaveMessage appends a message to the conversation history.
func (s *Service) SaveMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	if !message.Sender.Valid() {
		return chat.Message{}, ErrInvalidSender
	}
	if strings.TrimSpace(message.Content) == "" {
		return chat.Message{}, ErrContentRequired
	}
	if message.IsWhisper {
		if message.Sender != chat.SenderUser {
			return chat.Message{}, ErrInvalidWhisper
		}
		if message.TargetRole != string(chat.SenderDefender) && message.TargetRole != string(chat.SenderCritic) {
			return chat.Message{}, ErrInvalidWhisper
		}
	} else {
		message.TargetRole = ""
	}

	return s.store.CreateMessage(ctx, message)
}

// LoadTranscript returns stored messages for the provided conversation.
func (s *Service) LoadTranscript(ctx context.Context, conversationID string) ([]chat.Message, error) {
	return s.store.ListMessages(ctx, conversationID)
}

// IsValidationError reports whether err came from request validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTopicRequired) ||
		errors.Is(err, ErrContentRequired) ||
		errors.Is(err, ErrInvalidSender) ||
		errors.Is(err, ErrInvalidWhisper)
}
