package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
	"github.com/zhouzirui/z-arena/backend/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id UUID PRIMARY KEY,
	topic TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS messages (
	seq BIGSERIAL PRIMARY KEY,
	id UUID NOT NULL UNIQUE,
	conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender TEXT NOT NULL CHECK (sender IN ('user','defender','critic')),
	content TEXT NOT NULL,
	is_whisper BOOLEAN NOT NULL DEFAULT false,
	target_role TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq);
`

// Store implements store.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and applies the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, topic string) (chat.Conversation, error) {
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, topic, created_at) VALUES ($1, $2, $3)`,
		conv.ID, conv.Topic, conv.CreatedAt)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return chat.Conversation{}, store.ErrNotFound
	}

	var conv chat.Conversation
	var convID uuid.UUID
	err = s.pool.QueryRow(ctx,
		`SELECT id, topic, created_at FROM conversations WHERE id = $1`, parsed,
	).Scan(&convID, &conv.Topic, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Conversation{}, store.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("query conversation: %w", err)
	}
	conv.ID = convID.String()
	conv.CreatedAt = conv.CreatedAt.UTC()
	return conv, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	conv, err := s.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return chat.Message{}, err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender, content, is_whisper, target_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, conv.ID, string(msg.Sender), msg.Content, msg.IsWhisper, msg.TargetRole, msg.CreatedAt,
	)
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, sender, content, is_whisper, target_role, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq ASC`, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0, 16)
	for rows.Next() {
		var (
			msg    chat.Message
			id     uuid.UUID
			sender string
		)
		if err := rows.Scan(&id, &sender, &msg.Content, &msg.IsWhisper, &msg.TargetRole, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ID = id.String()
		msg.ConversationID = conv.ID
		msg.Sender = chat.Sender(sender)
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

var _ store.Store = (*Store)(nil)
