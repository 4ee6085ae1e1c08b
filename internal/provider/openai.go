package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/apexion-ai/threadbot/internal/prompt"
)

// openaiBase holds what both OpenAI protocols share: the client, the model
// and the provider name inferred from the base URL.
type openaiBase struct {
	client openai.Client
	model  string
	name   string
}

func newOpenAIBase(apiKey, baseURL, model, fallbackModel string, extra ...option.RequestOption) openaiBase {
	// SDK retries are disabled: each Complete call is one terminal attempt.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)

	if model == "" {
		model = fallbackModel
	}

	return openaiBase{
		client: openai.NewClient(opts...),
		model:  model,
		name:   nameFromBaseURL(baseURL),
	}
}

// nameFromBaseURL recognises OpenAI-compatible vendors by host.
func nameFromBaseURL(baseURL string) string {
	switch {
	case strings.Contains(baseURL, "deepseek"):
		return "deepseek"
	case strings.Contains(baseURL, "moonshot"):
		return "kimi"
	case strings.Contains(baseURL, "dashscope"):
		return "qwen"
	case strings.Contains(baseURL, "groq"):
		return "groq"
	default:
		return "openai"
	}
}

func (b openaiBase) DefaultModel() string { return b.model }
func (b openaiBase) ContextWindow() int   { return ContextWindow(b.model) }

func (b openaiBase) modelFor(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return b.model
}

// ── Legacy /completions ─────────────────────────────────────────────────────

// OpenAICompletions talks to the legacy single-string completions endpoint.
type OpenAICompletions struct {
	openaiBase
}

// NewOpenAICompletions creates a legacy completions backend.
func NewOpenAICompletions(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAICompletions {
	return &OpenAICompletions{newOpenAIBase(apiKey, baseURL, model, "gpt-3.5-turbo-instruct", opts...)}
}

func (p *OpenAICompletions) Name() string { return p.name + "-legacy" }

func (p *OpenAICompletions) Complete(ctx context.Context, req *Request) (string, error) {
	text, ok := req.Prompt.(prompt.TextPrompt)
	if !ok {
		return "", invalidPrompt(p.Name(), req.Prompt)
	}

	params := openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(p.modelFor(req)),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String(string(text))},
		Temperature: openai.Float(req.Temperature),
		TopP:        openai.Float(req.TopP),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.CompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}

	resp, err := p.client.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(p.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Text, nil
}

// ── /chat/completions ───────────────────────────────────────────────────────

// OpenAIChat talks to the chat completions endpoint of OpenAI and every
// OpenAI-compatible API (DeepSeek, Kimi, Qwen, Groq, ...).
type OpenAIChat struct {
	openaiBase
}

// NewOpenAIChat creates a chat completions backend.
func NewOpenAIChat(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAIChat {
	return &OpenAIChat{newOpenAIBase(apiKey, baseURL, model, "gpt-3.5-turbo", opts...)}
}

func (p *OpenAIChat) Name() string { return p.name }

func (p *OpenAIChat) Complete(ctx context.Context, req *Request) (string, error) {
	chat, ok := req.Prompt.(prompt.ChatPrompt)
	if !ok {
		return "", invalidPrompt(p.Name(), req.Prompt)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.modelFor(req)),
		Messages:    buildChatMessages(chat),
		Temperature: openai.Float(req.Temperature),
		TopP:        openai.Float(req.TopP),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(p.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// buildChatMessages converts rendered role messages to OpenAI API params.
func buildChatMessages(chat prompt.ChatPrompt) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(chat))
	for _, m := range chat {
		switch m.Role {
		case prompt.RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case prompt.RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}
	return params
}

// classifyOpenAIError maps SDK errors onto the provider sentinels. Errors
// that are not API rejections (network, cancellation) pass through.
func classifyOpenAIError(name string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	msg := apiErr.Message
	switch {
	case apiErr.Code == "context_length_exceeded",
		strings.Contains(msg, "maximum context length"):
		return &RequestError{Provider: name, StatusCode: apiErr.StatusCode, Message: msg, Err: ErrContextLength}
	case apiErr.Type == "invalid_request_error",
		apiErr.StatusCode == http.StatusBadRequest,
		apiErr.StatusCode == http.StatusNotFound,
		apiErr.StatusCode == http.StatusUnprocessableEntity:
		return &RequestError{Provider: name, StatusCode: apiErr.StatusCode, Message: msg, Err: ErrInvalidRequest}
	}
	return err
}
