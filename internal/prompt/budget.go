package prompt

import "go.uber.org/zap"

// Budget is the token allocation for one request.
type Budget struct {
	Ceiling  int // total tokens allowed for prompt + reply
	Reserved int // held back for the model's reply
}

// Limit is the number of tokens the rendered prompt may use.
func (b Budget) Limit() int { return b.Ceiling - b.Reserved }

// Selection is the budgeted window of a history.
type Selection struct {
	Messages Conversation // chronological
	Tokens   int          // rendered cost of Messages; zero when empty
}

// Empty reports whether not even the newest message fits.
func (s Selection) Empty() bool { return len(s.Messages) == 0 }

// Budgeter selects the longest suffix of a history whose full rendering
// (header and examples included) fits under ceiling-reserved.
type Budgeter struct {
	tokens   Tokenizer
	renderer Renderer
	header   *Message
	examples []Conversation
	logger   *zap.Logger
}

// NewBudgeter creates a Budgeter that measures windows exactly as renderer
// will emit them.
func NewBudgeter(tok Tokenizer, renderer Renderer, header *Message, examples []Conversation, logger *zap.Logger) *Budgeter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Budgeter{
		tokens:   tok,
		renderer: renderer,
		header:   header,
		examples: examples,
		logger:   logger,
	}
}

// Prompt wraps a window with the configured header and examples.
func (b *Budgeter) Prompt(window Conversation) Prompt {
	return Prompt{Header: b.header, Examples: b.examples, Convo: window}
}

// Select walks history newest to oldest and stops before the first message
// that would push the rendered window over ceiling-reserved. Token costs
// are not additive across encodings, so the running total is recomputed
// over the whole window after each addition instead of summed.
func (b *Budgeter) Select(history Conversation, ceiling, reserved int) Selection {
	limit := Budget{Ceiling: ceiling, Reserved: reserved}.Limit()
	var (
		newestFirst Conversation
		total       int
	)

	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		cost := b.tokens.Count(b.renderer.Serialize(msg))

		candidate := make(Conversation, 0, len(newestFirst)+1)
		candidate = append(candidate, msg)
		candidate = append(candidate, reverse(newestFirst)...)
		after := b.tokens.Count(b.renderer.Render(b.Prompt(candidate)).String())

		if after > limit {
			b.logger.Debug("history budget reached",
				zap.Int("message_tokens", cost),
				zap.Int("running_tokens", total),
				zap.Int("limit", limit),
				zap.Int("dropped", i+1))
			break
		}
		newestFirst = append(newestFirst, msg)
		total = after
	}

	b.logger.Debug("history selected",
		zap.Int("messages", len(newestFirst)),
		zap.Int("of", len(history)),
		zap.Int("tokens", total))

	return Selection{Messages: reverse(newestFirst), Tokens: total}
}

func reverse(c Conversation) Conversation {
	if len(c) == 0 {
		return nil
	}
	out := make(Conversation, len(c))
	for i, m := range c {
		out[len(c)-1-i] = m
	}
	return out
}
