// Package completion turns a conversation history into one moderated reply
// and classifies the result into an Outcome.
//
// Generate is the only entry point. It budgets the history with
// prompt.Budgeter, renders it with the configured prompt.Renderer, calls the
// provider.Backend once, and runs the moderation.Gate over the tail of the
// prompt plus reply. Every error is converted into an Outcome here; nothing
// escapes to the dispatcher.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apexion-ai/threadbot/internal/moderation"
	"github.com/apexion-ai/threadbot/internal/prompt"
	"github.com/apexion-ai/threadbot/internal/provider"
)

// Defaults for Options fields left zero.
const (
	DefaultTemperature      = 1.0
	DefaultTopP             = 0.9
	DefaultMaxTokens        = 512
	DefaultCeiling          = 4096
	DefaultModerationWindow = 500
)

// Options configures an Engine.
type Options struct {
	Backend   provider.Backend
	Gate      moderation.Gate // nil disables moderation
	Tokenizer prompt.Tokenizer
	Renderer  prompt.Renderer

	Header   *prompt.Message
	Examples []prompt.Conversation
	Budget   prompt.Budget

	// ContextWindow is the model's absolute context size. Zero asks the
	// backend.
	ContextWindow int

	// Temperature and TopP are sent as given; nil takes the default.
	// An explicit zero is honoured.
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   int

	// ModerationWindow is how many trailing characters of prompt+reply
	// are sent to the gate.
	ModerationWindow int

	// Timeout bounds the backend and moderation calls of one request.
	Timeout time.Duration

	Logger *zap.Logger
}

// Engine is safe for concurrent use; it holds no per-request state.
type Engine struct {
	backend  provider.Backend
	gate     moderation.Gate
	renderer prompt.Renderer
	budgeter *prompt.Budgeter

	model       string
	temperature float64
	topP        float64
	maxTokens   int
	budget      prompt.Budget
	window      int
	timeout     time.Duration

	logger *zap.Logger
}

// New builds an Engine. Backend and Renderer are required.
func New(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, errors.New("completion: backend is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("completion: renderer is required")
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = prompt.Estimator{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	temperature, topP := DefaultTemperature, DefaultTopP
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		topP = *opts.TopP
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.ModerationWindow <= 0 {
		opts.ModerationWindow = DefaultModerationWindow
	}
	if opts.Model == "" {
		opts.Model = opts.Backend.DefaultModel()
	}

	budget := opts.Budget
	if budget.Ceiling <= 0 {
		budget.Ceiling = DefaultCeiling
	}
	cw := opts.ContextWindow
	if cw <= 0 {
		cw = opts.Backend.ContextWindow()
	}
	// Never budget past what the model can actually hold.
	if cw > 0 && budget.Ceiling > cw {
		budget.Ceiling = cw
	}
	if budget.Reserved < 0 {
		return nil, fmt.Errorf("completion: reserved tokens must not be negative, got %d", budget.Reserved)
	}
	if budget.Reserved >= budget.Ceiling {
		return nil, fmt.Errorf("completion: reserved tokens (%d) must be below the ceiling (%d)", budget.Reserved, budget.Ceiling)
	}

	return &Engine{
		backend:     opts.Backend,
		gate:        opts.Gate,
		renderer:    opts.Renderer,
		budgeter:    prompt.NewBudgeter(opts.Tokenizer, opts.Renderer, opts.Header, opts.Examples, opts.Logger),
		model:       opts.Model,
		temperature: temperature,
		topP:        topP,
		maxTokens:   opts.MaxTokens,
		budget:      budget,
		window:      opts.ModerationWindow,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
	}, nil
}

// Budget returns the effective token budget after clamping to the model.
func (e *Engine) Budget() prompt.Budget { return e.budget }

// Generate produces the outcome for history on behalf of user. It performs
// at most one backend call and one moderation call and never retries.
func (e *Engine) Generate(ctx context.Context, history prompt.Conversation, user string) Outcome {
	log := e.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("user", user),
		zap.String("backend", e.backend.Name()),
		zap.String("model", e.model),
	)

	sel := e.budgeter.Select(history, e.budget.Ceiling, e.budget.Reserved)
	if sel.Empty() {
		detail := fmt.Sprintf("conversation does not fit in %d tokens", e.budget.Limit())
		log.Warn("history too long", zap.Int("messages", len(history)), zap.String("detail", detail))
		return TooLong{Detail: detail}
	}
	rendered := e.renderer.Render(e.budgeter.Prompt(sel.Messages))

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := e.backend.Complete(ctx, &provider.Request{
		Model:       e.model,
		Prompt:      rendered,
		Temperature: e.temperature,
		TopP:        e.topP,
		MaxTokens:   e.maxTokens,
		Stop:        e.renderer.Stop(),
		User:        user,
	})
	if err != nil {
		return e.classify(log, err)
	}
	reply = strings.TrimSpace(reply)
	log.Debug("completion received",
		zap.Int("prompt_tokens", sel.Tokens),
		zap.Int("messages", len(sel.Messages)),
		zap.Int("reply_len", len(reply)),
		zap.Duration("elapsed", time.Since(start)))

	if reply == "" {
		return OK{}
	}
	if e.gate == nil {
		return OK{Reply: reply}
	}

	verdict, err := e.gate.Classify(ctx, tail(rendered.String()+reply, e.window), user)
	if err != nil {
		log.Error("moderation failed", zap.Error(err))
		return OtherError{Detail: err.Error()}
	}
	switch {
	case verdict.Blocked != "":
		log.Info("reply blocked", zap.String("categories", verdict.Blocked))
		return Blocked{Suppressed: reply, Categories: verdict.Blocked}
	case verdict.Flagged != "":
		log.Info("reply flagged", zap.String("categories", verdict.Flagged))
		return Flagged{Reply: reply, Categories: verdict.Flagged}
	}
	return OK{Reply: reply}
}

func (e *Engine) classify(log *zap.Logger, err error) Outcome {
	switch {
	case provider.IsContextLength(err):
		log.Error("backend rejected prompt length", zap.Error(err))
		return TooLong{Detail: err.Error()}
	case provider.IsInvalidRequest(err):
		log.Error("backend rejected request", zap.Error(err))
		return InvalidRequest{Detail: err.Error()}
	default:
		log.Error("backend call failed", zap.Error(err))
		return OtherError{Detail: err.Error()}
	}
}

// tail returns the last n characters of s.
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
