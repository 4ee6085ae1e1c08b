package prompt

import (
	"encoding/json"
	"strings"
)

// Rendered is a backend-native prompt. String returns the serialization
// used for token accounting and as moderation context.
type Rendered interface {
	String() string
}

// TextPrompt is the flat single-string prompt of the legacy completions API.
type TextPrompt string

func (p TextPrompt) String() string { return string(p) }

// Role is the speaker of a structured chat entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one {role, content} entry of a structured prompt.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatPrompt is the ordered role-message list of chat-style APIs.
type ChatPrompt []ChatMessage

// String returns the compact JSON array of the entries.
func (p ChatPrompt) String() string {
	if len(p) == 0 {
		return "[]"
	}
	b, err := json.Marshal([]ChatMessage(p))
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Renderer serializes a Prompt for one backend protocol. The strategy is
// picked once at configuration time.
type Renderer interface {
	// Render builds the full backend payload.
	Render(p Prompt) Rendered

	// Serialize returns the text of a single message as it appears inside
	// a rendering. Used to report per-message cost.
	Serialize(m Message) string

	// Stop returns the stop sequences the backend should honour.
	Stop() []string
}

// ── Legacy single-string mode ────────────────────────────────────────────────

// TextRenderer renders the legacy "author: text" transcript ending with a
// bare "BotName:" cue for the model to complete.
type TextRenderer struct {
	BotName string
}

func (r TextRenderer) Render(p Prompt) Rendered {
	var parts []string
	if p.Header != nil {
		parts = append(parts, p.Header.Render())
	}
	parts = append(parts, Message{Author: "System", Text: "Example conversations:"}.Render())
	for _, ex := range p.Examples {
		parts = append(parts, ex.Render())
	}
	parts = append(parts, Message{Author: "System", Text: "Now, you will work with the actual current conversation."}.Render())

	convo := append(p.Convo.Clone(), Message{Author: r.BotName})
	parts = append(parts, convo.Render())

	return TextPrompt(strings.Join(parts, "\n"+Separator))
}

func (r TextRenderer) Serialize(m Message) string { return m.Render() }

func (r TextRenderer) Stop() []string { return []string{Separator} }

// ── Structured role-message mode ─────────────────────────────────────────────

// ChatRenderer renders role messages; messages written by BotName become
// assistant turns, everyone else is a user.
type ChatRenderer struct {
	BotName string
}

func (r ChatRenderer) Render(p Prompt) Rendered {
	out := make(ChatPrompt, 0, len(p.Convo)+1)
	if p.Header != nil && p.Header.Text != "" {
		out = append(out, ChatMessage{Role: RoleSystem, Content: p.Header.Text})
	}
	for _, ex := range p.Examples {
		for _, m := range ex {
			out = append(out, r.entry(m))
		}
	}
	for _, m := range p.Convo {
		out = append(out, r.entry(m))
	}
	return out
}

func (r ChatRenderer) Serialize(m Message) string {
	return ChatPrompt{r.entry(m)}.String()
}

func (r ChatRenderer) Stop() []string { return nil }

func (r ChatRenderer) entry(m Message) ChatMessage {
	role := RoleUser
	if m.Author == r.BotName {
		role = RoleAssistant
	}
	return ChatMessage{Role: role, Content: m.Text}
}
