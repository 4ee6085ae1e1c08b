package provider

import "testing"

func TestContextWindow(t *testing.T) {
	tests := []struct {
		model    string
		expected int
	}{
		{"gpt-3.5-turbo", 4096},
		{"gpt-3.5-turbo-instruct", 4096},
		{"gpt-3.5-turbo-16k", 16385},
		{"gpt-4", 8192},
		{"gpt-4-32k", 32768},
		{"gpt-4o-mini", 128000},
		{"o3-mini", 200000},
		{"claude-sonnet-4-20250514", 200000},
		{"deepseek-chat", 64000},
		{"some-unknown-model", 4096},
	}
	for _, tt := range tests {
		if got := ContextWindow(tt.model); got != tt.expected {
			t.Errorf("ContextWindow(%q) = %d, want %d", tt.model, got, tt.expected)
		}
	}
}

func TestContextWindowWithOverrides(t *testing.T) {
	overrides := map[string]int{
		"gpt-4*":   10000,
		"gpt-4o*":  20000,
		"my-model": 3000,
	}
	tests := []struct {
		model    string
		expected int
	}{
		{"my-model", 3000},
		{"MY-MODEL", 3000},
		{"gpt-4o-mini", 20000},
		{"gpt-4", 10000},
		{"gpt-3.5-turbo", 4096},
	}
	for _, tt := range tests {
		if got := ContextWindowWithOverrides(tt.model, overrides); got != tt.expected {
			t.Errorf("ContextWindowWithOverrides(%q) = %d, want %d", tt.model, got, tt.expected)
		}
	}
}

func TestContextWindowWithOverrides_IgnoresNonPositive(t *testing.T) {
	got := ContextWindowWithOverrides("gpt-4", map[string]int{"gpt-4": 0})
	if got != 8192 {
		t.Fatalf("expected built-in window 8192, got %d", got)
	}
}

func TestUsesTiktoken(t *testing.T) {
	if !UsesTiktoken("openai") || !UsesTiktoken("openai-legacy") {
		t.Error("expected OpenAI backends to use tiktoken")
	}
	if UsesTiktoken("anthropic") {
		t.Error("expected anthropic to fall back to the estimator")
	}
}
