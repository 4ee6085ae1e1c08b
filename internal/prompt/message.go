// Package prompt turns a chat history into a backend-ready prompt that fits
// a model's token budget.
//
// The package has three parts:
//   - Message / Conversation / Prompt: the value types handed in by a transport
//   - Renderer: the strategy that serializes a Prompt for one backend protocol
//   - Budgeter: picks the newest messages whose rendering fits the budget
package prompt

import "strings"

// Separator terminates every rendered message in the legacy text protocol.
// It is also the stop marker sent with legacy completion requests.
const Separator = "<|endoftext|>"

// Message is a single chat line. Text is empty only for the trailing
// "bot turn" cue appended by TextRenderer.
type Message struct {
	Author string `yaml:"author" json:"author"`
	Text   string `yaml:"text" json:"text"`
}

// Render formats the message as "author: text", or "author:" for a cue.
func (m Message) Render() string {
	if m.Text == "" {
		return m.Author + ":"
	}
	return m.Author + ": " + m.Text
}

// Conversation is an ordered message history, oldest first.
type Conversation []Message

// Clone returns a private copy so callers' slices are never mutated.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// Render joins the rendered messages with the legacy separator.
func (c Conversation) Render() string {
	lines := make([]string, len(c))
	for i, m := range c {
		lines[i] = m.Render()
	}
	return strings.Join(lines, "\n"+Separator)
}

// Prompt is everything a Renderer needs: optional instructions, fixed
// example exchanges and the (already budgeted) live conversation.
type Prompt struct {
	Header   *Message
	Examples []Conversation
	Convo    Conversation
}
