package chat

import "time"

// Sender identifies who authored a debate turn.
type Sender string

const (
	SenderUser     Sender = "user"
	SenderDefender Sender = "defender"
	SenderCritic   Sender = "critic"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderDefender, SenderCritic:
		return true
	}
	return false
}

// Message persists individual debate turns.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	IsWhisper      bool      `json:"isWhisper"`
	TargetRole     string    `json:"targetRole,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
