package debate

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
	modeldebate "github.com/zhouzirui/z-arena/backend/internal/model/debate"
	"github.com/zhouzirui/z-arena/backend/internal/model/persona"
)

// DefaultHistoryLimit is how many visible turns are replayed to the model.
const DefaultHistoryLimit = 6

// HistoryBuilder assembles the prompt for one role from the debate so far.
type HistoryBuilder struct {
	personas persona.Store
	prompts  *PromptManager
	limit    int
}

// NewHistoryBuilder returns a builder that keeps the last limit visible turns.
func NewHistoryBuilder(personas persona.Store, limit int) *HistoryBuilder {
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	return &HistoryBuilder{
		personas: personas,
		prompts:  NewPromptManager(),
		limit:    limit,
	}
}

// Visible reports whether role may see msg. A whisper is visible only to
// the role it targets; untargeted whispers are visible to no AI.
func Visible(msg chat.Message, role modeldebate.Role) bool {
	if !msg.IsWhisper {
		return true
	}
	return msg.TargetRole == string(role)
}

// Build returns the system message, the topic message and the filtered,
// truncated history mapped onto user/assistant roles.
func (b *HistoryBuilder) Build(role modeldebate.Role, topic string, history []chat.Message) []*schema.Message {
	self := b.persona(role)
	other := b.persona(role.Other())

	turn := 1
	for _, msg := range history {
		if msg.Sender == role.Sender() {
			turn++
		}
	}

	visible := make([]chat.Message, 0, len(history))
	for _, msg := range history {
		if Visible(msg, role) {
			visible = append(visible, msg)
		}
	}
	if len(visible) > b.limit {
		visible = visible[len(visible)-b.limit:]
	}

	prompt := make([]*schema.Message, 0, len(visible)+2)
	prompt = append(prompt,
		schema.SystemMessage(b.systemPrompt(&self, &other, turn)),
		schema.UserMessage(fmt.Sprintf("Debate topic: %s", strings.TrimSpace(topic))),
	)

	for _, msg := range visible {
		switch msg.Sender {
		case role.Sender():
			prompt = append(prompt, schema.AssistantMessage(msg.Content, nil))
		case role.Other().Sender():
			prompt = append(prompt, schema.UserMessage(fmt.Sprintf("[%s]: %s", other.Name, msg.Content)))
		default:
			prompt = append(prompt, schema.UserMessage(msg.Content))
		}
	}
	return prompt
}

func (b *HistoryBuilder) systemPrompt(self, other *persona.Persona, turn int) string {
	var sb strings.Builder
	sb.WriteString(b.prompts.BuildSystemPrompt(self, other))
	fmt.Fprintf(&sb, "\n\nThis is your turn #%d in the debate.", turn)
	if turn > 1 {
		sb.WriteString(" Do not repeat points you have already made; build on them or answer the latest arguments.")
	} else {
		sb.WriteString(" Open with your position and your strongest argument.")
	}
	return sb.String()
}

func (b *HistoryBuilder) persona(role modeldebate.Role) persona.Persona {
	if b.personas != nil {
		if p, ok := b.personas.FindByID(string(role)); ok {
			return p
		}
	}
	name := string(role)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return persona.Persona{ID: string(role), Name: name, Title: "debater"}
}
