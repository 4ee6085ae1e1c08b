package provider

import (
	"path"
	"strings"
)

// ContextWindow returns the absolute context size of a model, in tokens.
// Unknown models get the conservative 4096 of the GPT-3.5 family.
func ContextWindow(model string) int {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "claude"):
		return 200000
	case strings.Contains(m, "gpt-4o"), strings.Contains(m, "gpt-4.1"), strings.Contains(m, "gpt-4-turbo"):
		return 128000
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return 200000
	case strings.Contains(m, "gpt-4-32k"):
		return 32768
	case strings.Contains(m, "gpt-4"):
		return 8192
	case strings.Contains(m, "gpt-3.5-turbo-16k"):
		return 16385
	case strings.Contains(m, "deepseek"):
		return 64000
	default:
		return 4096
	}
}

// ContextWindowWithOverrides applies user-configured windows before the
// built-in table. Keys are exact model names or glob patterns ("gpt-4o*").
func ContextWindowWithOverrides(model string, overrides map[string]int) int {
	rules := make([]string, 0, len(overrides))
	for rule := range overrides {
		rules = append(rules, rule)
	}
	if rule, ok := matchModelList(model, rules); ok && overrides[rule] > 0 {
		return overrides[rule]
	}
	return ContextWindow(model)
}

// UsesTiktoken reports whether the model's tokenizer is published through
// tiktoken. Other backends fall back to a character estimate.
func UsesTiktoken(providerName string) bool {
	return providerName != "anthropic"
}

// matchModelList prefers an exact match over glob matches so that
// "gpt-4o" beats "gpt-4*" regardless of map order.
func matchModelList(model string, rules []string) (string, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	var glob string
	for _, raw := range rules {
		rule := strings.ToLower(strings.TrimSpace(raw))
		if rule == "" {
			continue
		}
		if isGlobRule(rule) {
			if ok, _ := path.Match(rule, m); ok && (glob == "" || len(raw) > len(glob)) {
				glob = raw
			}
			continue
		}
		if m == rule {
			return raw, true
		}
	}
	if glob != "" {
		return glob, true
	}
	return "", false
}

func isGlobRule(rule string) bool {
	return strings.ContainsAny(rule, "*?[")
}
