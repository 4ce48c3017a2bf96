package chat

import "time"

// Conversation groups the turns of one debate.
type Conversation struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"createdAt"`
}
