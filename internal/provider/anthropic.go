package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/apexion-ai/threadbot/internal/prompt"
)

// Anthropic implements Backend using the native Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic backend. baseURL may be empty.
func NewAnthropic(apiKey, baseURL, model string, opts ...anthropicoption.RequestOption) *Anthropic {
	all := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(apiKey), anthropicoption.WithMaxRetries(0)}
	if baseURL != "" {
		all = append(all, anthropicoption.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &Anthropic{
		client: anthropic.NewClient(all...),
		model:  model,
	}
}

func (p *Anthropic) Name() string         { return "anthropic" }
func (p *Anthropic) DefaultModel() string { return p.model }
func (p *Anthropic) ContextWindow() int   { return ContextWindow(p.model) }

func (p *Anthropic) Complete(ctx context.Context, req *Request) (string, error) {
	chat, ok := req.Prompt.(prompt.ChatPrompt)
	if !ok {
		return "", invalidPrompt(p.Name(), req.Prompt)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 512
	}

	system, msgs := p.buildMessages(chat)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		TopP:        anthropic.Float(req.TopP),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}
	if req.User != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(req.User)}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropicError(p.Name(), err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// buildMessages splits system entries out (Anthropic takes them as a
// top-level field) and converts the rest to user/assistant turns.
func (p *Anthropic) buildMessages(chat prompt.ChatPrompt) (string, []anthropic.MessageParam) {
	var (
		system []string
		msgs   []anthropic.MessageParam
	)
	for _, m := range chat {
		switch m.Role {
		case prompt.RoleSystem:
			system = append(system, m.Content)
		case prompt.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return strings.Join(system, "\n\n"), msgs
}

// classifyAnthropicError reads the error envelope
// {"type":"error","error":{"type":"...","message":"..."}}.
func classifyAnthropicError(name string, err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	raw := apiErr.RawJSON()
	msg := gjson.Get(raw, "error.message").String()
	typ := gjson.Get(raw, "error.type").String()

	switch {
	case strings.Contains(msg, "prompt is too long"),
		strings.Contains(msg, "context window"):
		return &RequestError{Provider: name, StatusCode: apiErr.StatusCode, Message: msg, Err: ErrContextLength}
	case typ == "invalid_request_error",
		typ == "not_found_error",
		apiErr.StatusCode == http.StatusBadRequest,
		apiErr.StatusCode == http.StatusNotFound:
		return &RequestError{Provider: name, StatusCode: apiErr.StatusCode, Message: msg, Err: ErrInvalidRequest}
	}
	return err
}
