package debate

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-arena/backend/internal/model/persona"
)

// PromptTemplate defines the structure for persona prompts
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
}

// PromptManager manages prompt templates for the debate roles
type PromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPromptManager creates a new prompt manager with default templates
func NewPromptManager() *PromptManager {
	manager := &PromptManager{
		templates: make(map[string]*PromptTemplate),
	}

	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given persona
func (pm *PromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// BuildSystemPrompt renders the persona block of the system message.
// Instructions loaded from a persona file take precedence over the
// built-in template text.
func (pm *PromptManager) BuildSystemPrompt(p *persona.Persona, opponent *persona.Persona) string {
	template, err := pm.GetPromptTemplate(p.ID)
	if err != nil {
		return pm.buildBasicSystemPrompt(p, opponent)
	}

	intro := template.SystemPrompt
	if strings.TrimSpace(p.Instructions) != "" {
		intro = p.Instructions
	}

	hints := append([]string(nil), template.PersonalityHints...)
	rules := append(append([]string(nil), template.ContextRules...), p.Rules...)

	return fmt.Sprintf(`%s

Role:
- Name: %s
- Title: %s
- Tone: %s
- Opponent: %s

Style hints:
- %s

Debate rules:
- %s`,
		intro,
		p.Name,
		p.Title,
		p.Tone,
		opponent.Name,
		strings.Join(hints, "\n- "),
		strings.Join(rules, "\n- "),
	)
}

// buildBasicSystemPrompt covers personas without a built-in template.
func (pm *PromptManager) buildBasicSystemPrompt(p *persona.Persona, opponent *persona.Persona) string {
	var b strings.Builder
	if p.Instructions != "" {
		b.WriteString(p.Instructions)
	} else {
		fmt.Fprintf(&b, "You are %s, %s, taking part in a moderated debate against %s.", p.Name, p.Title, opponent.Name)
	}
	if p.Tone != "" {
		fmt.Fprintf(&b, "\n\nKeep a %s tone.", p.Tone)
	}
	if p.PromptHint != "" {
		b.WriteString("\n")
		b.WriteString(p.PromptHint)
	}
	for _, rule := range p.Rules {
		b.WriteString("\n- ")
		b.WriteString(rule)
	}
	return b.String()
}

func (pm *PromptManager) loadDefaultTemplates() {
	pm.templates["defender"] = &PromptTemplate{
		SystemPrompt: "You are the Defender in a moderated debate. You argue in favour of the topic and answer the Critic's objections directly.",
		PersonalityHints: []string{
			"Lead with your strongest argument, then support it with a concrete example",
			"Acknowledge a fair objection before explaining why the proposition still holds",
			"Stay calm and constructive even when the Critic is sharp",
		},
		ContextRules: []string{
			"Messages prefixed with [Critic] are your opponent's arguments",
			"Other user messages come from the human moderator; follow their guidance",
			"Speak only as the Defender and never write the Critic's reply",
		},
	}

	pm.templates["critic"] = &PromptTemplate{
		SystemPrompt: "You are the Critic in a moderated debate. You challenge the topic and expose weaknesses in the Defender's arguments.",
		PersonalityHints: []string{
			"Target the single weakest claim in the Defender's last turn",
			"Ask for evidence where the Defender relies on assertion",
			"Offer counterexamples rather than generic doubt",
		},
		ContextRules: []string{
			"Messages prefixed with [Defender] are your opponent's arguments",
			"Other user messages come from the human moderator; follow their guidance",
			"Speak only as the Critic and never write the Defender's reply",
		},
	}
}
