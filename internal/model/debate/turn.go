package debate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
)

// Role identifies one of the two AI participants.
type Role string

const (
	RoleDefender Role = "defender"
	RoleCritic   Role = "critic"
)

var (
	ErrInvalidRole      = errors.New("currentTurn must be defender or critic")
	ErrTopicRequired    = errors.New("topic is required")
	ErrProviderRequired = errors.New("provider configuration is required for the current turn")
)

// Valid reports whether r names a debating role.
func (r Role) Valid() bool {
	return r == RoleDefender || r == RoleCritic
}

// Other returns the opposing role.
func (r Role) Other() Role {
	if r == RoleDefender {
		return RoleCritic
	}
	return RoleDefender
}

// Sender converts the role to the matching message sender.
func (r Role) Sender() chat.Sender {
	return chat.Sender(r)
}

// ProviderSelection chooses the upstream service for one role.
type ProviderSelection struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey,omitempty"`
}

// Providers maps each role to its upstream selection.
type Providers struct {
	Defender *ProviderSelection `json:"defender,omitempty"`
	Critic   *ProviderSelection `json:"critic,omitempty"`
}

// TurnRequest asks the relay to produce the next turn of a debate.
type TurnRequest struct {
	ConversationID string         `json:"conversationId,omitempty"`
	Messages       []chat.Message `json:"messages"`
	CurrentTurn    Role           `json:"currentTurn"`
	Topic          string         `json:"topic"`
	Providers      Providers      `json:"providers"`
	Temperature    *float64       `json:"temperature,omitempty"`
	MaxTokens      *int           `json:"maxTokens,omitempty"`
}

// ProviderFor returns the provider selection configured for role, if any.
func (r TurnRequest) ProviderFor(role Role) *ProviderSelection {
	switch role {
	case RoleDefender:
		return r.Providers.Defender
	case RoleCritic:
		return r.Providers.Critic
	default:
		return nil
	}
}

// Validate checks the request shape before any upstream work happens.
func (r TurnRequest) Validate() error {
	if !r.CurrentTurn.Valid() {
		return fmt.Errorf("%w: got %q", ErrInvalidRole, r.CurrentTurn)
	}
	if strings.TrimSpace(r.Topic) == "" {
		return ErrTopicRequired
	}

	sel := r.ProviderFor(r.CurrentTurn)
	if sel == nil || strings.TrimSpace(sel.Provider) == "" || strings.TrimSpace(sel.Model) == "" {
		return fmt.Errorf("%w (%s)", ErrProviderRequired, r.CurrentTurn)
	}

	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", *r.Temperature)
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return fmt.Errorf("maxTokens must be positive, got %d", *r.MaxTokens)
	}

	for i, msg := range r.Messages {
		if !msg.Sender.Valid() {
			return fmt.Errorf("messages[%d]: unknown sender %q", i, msg.Sender)
		}
	}
	return nil
}
