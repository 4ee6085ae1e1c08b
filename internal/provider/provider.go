// Package provider defines the completion backend contract shared by all
// remote text-generation services, plus one adapter per wire protocol.
// Each adapter (openai.go, anthropic.go) converts a rendered prompt into its
// vendor request, returns the first choice's text and classifies failures
// into the sentinel errors in errors.go.
package provider

import (
	"context"

	"github.com/apexion-ai/threadbot/internal/prompt"
)

// ── Request types ────────────────────────────────────────────────────────────

// Request is the unified completion request.
type Request struct {
	Model       string
	Prompt      prompt.Rendered
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string // legacy text mode only

	// User is an opaque end-user identifier forwarded for abuse tracking.
	User string
}

// ── Backend interface ────────────────────────────────────────────────────────

// Backend is a remote text-generation service.
// Implementors are responsible for:
// 1. Converting the rendered prompt into the service's request format
// 2. Returning the text of the first choice (empty when the model said nothing)
// 3. Mapping service errors onto ErrContextLength / ErrInvalidRequest
// 4. Never retrying; one Complete call is one round trip
type Backend interface {
	// Complete performs one blocking generation call.
	Complete(ctx context.Context, req *Request) (string, error)

	// Name returns the backend identifier, e.g. "openai", "openai-legacy", "anthropic".
	Name() string

	// DefaultModel returns the model used when Request.Model is empty.
	DefaultModel() string

	// ContextWindow returns the absolute context size of the default model.
	ContextWindow() int
}
