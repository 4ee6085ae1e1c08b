package cmd

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/apexion-ai/threadbot/internal/completion"
	"github.com/apexion-ai/threadbot/internal/config"
	"github.com/apexion-ai/threadbot/internal/modlog"
	"github.com/apexion-ai/threadbot/internal/moderation"
	"github.com/apexion-ai/threadbot/internal/prompt"
	"github.com/apexion-ai/threadbot/internal/provider"
)

// displayVersion returns a formatted version string, e.g. "v0.1.0 (abc1234)".
func displayVersion() string {
	v := "v" + appVersion
	if appCommit != "" && appCommit != "none" {
		v += " (" + appCommit + ")"
	}
	return v
}

// buildBackend creates the completion backend named by cfg.Provider.
func buildBackend(cfg *config.Config) (provider.Backend, error) {
	name := cfg.Provider
	pc := cfg.ActiveProvider()

	if pc.APIKey == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY\n"+
				"  - run: threadbot init",
			name, name,
		)
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropic(pc.APIKey, pc.BaseURL, pc.Model), nil
	case "openai-legacy":
		return provider.NewOpenAICompletions(pc.APIKey, pc.BaseURL, pc.Model), nil
	case "openai":
		return provider.NewOpenAIChat(pc.APIKey, pc.BaseURL, pc.Model), nil
	default:
		// All other providers use the OpenAI-compatible chat API.
		if pc.BaseURL == "" {
			return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
		}
		return provider.NewOpenAIChat(pc.APIKey, pc.BaseURL, pc.Model), nil
	}
}

// buildRenderer picks the prompt layout the backend's protocol expects.
func buildRenderer(cfg *config.Config) prompt.Renderer {
	if cfg.Provider == "openai-legacy" {
		return prompt.TextRenderer{BotName: cfg.Bot.Name}
	}
	return prompt.ChatRenderer{BotName: cfg.Bot.Name}
}

// buildTokenizer returns the model's BPE when tiktoken knows the backend,
// otherwise the character estimator.
func buildTokenizer(b provider.Backend, model string, logger *zap.Logger) prompt.Tokenizer {
	if !provider.UsesTiktoken(b.Name()) {
		return prompt.Estimator{}
	}
	tok, err := prompt.NewTiktokenCounter(model)
	if err != nil {
		logger.Warn("tiktoken unavailable, estimating tokens", zap.Error(err))
		return prompt.Estimator{}
	}
	return tok
}

// buildGate returns nil when moderation is disabled or has no key.
func buildGate(cfg *config.Config, logger *zap.Logger) moderation.Gate {
	mc := cfg.Moderation
	if !mc.Enabled {
		return nil
	}
	key := cfg.ModerationKey()
	if key == "" {
		logger.Warn("moderation enabled but no OpenAI key configured; replies will not be moderated")
		return nil
	}
	return moderation.NewOpenAIGate(key, mc.BaseURL, mc.Model,
		mergeThresholds(moderation.DefaultBlocked(), mc.Blocked),
		mergeThresholds(moderation.DefaultFlagged(), mc.Flagged),
		logger)
}

func mergeThresholds(base moderation.Thresholds, overrides map[string]float64) moderation.Thresholds {
	for k, v := range overrides {
		base[k] = v
	}
	return base
}

// buildEngine wires backend, tokenizer, renderer and moderation from cfg.
func buildEngine(cfg *config.Config, logger *zap.Logger) (*completion.Engine, error) {
	backend, err := buildBackend(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.ActiveProvider().Model
	if model == "" {
		model = backend.DefaultModel()
	}

	var header *prompt.Message
	if cfg.Bot.Instructions != "" {
		header = &prompt.Message{Author: "System", Text: cfg.Bot.Instructions}
	}

	cc := cfg.Completion
	engine, err := completion.New(completion.Options{
		Backend:   backend,
		Gate:      buildGate(cfg, logger),
		Tokenizer: buildTokenizer(backend, model, logger),
		Renderer:  buildRenderer(cfg),
		Header:    header,
		Examples:  cfg.Bot.Examples,
		Budget: prompt.Budget{
			Ceiling:  cc.MaxTotalTokens,
			Reserved: cc.ReservedTokens,
		},
		ContextWindow:    provider.ContextWindowWithOverrides(model, cfg.ContextWindows),
		Model:            model,
		Temperature:      &cc.Temperature,
		TopP:             &cc.TopP,
		MaxTokens:        cc.MaxTokens,
		ModerationWindow: cc.ModerationWindow,
		Timeout:          time.Duration(cc.TimeoutSec) * time.Second,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("engine ready",
		zap.String("version", displayVersion()),
		zap.String("provider", cfg.Provider),
		zap.String("backend", backend.Name()),
		zap.String("model", model),
		zap.Int("ceiling", engine.Budget().Ceiling),
		zap.Int("reserved", engine.Budget().Reserved))
	return engine, nil
}

// openModLog opens the SQLite audit store, or returns nil when disabled.
func openModLog(cfg *config.Config) (*modlog.SQLiteStore, error) {
	if cfg.ModLog.Disabled {
		return nil, nil
	}
	path := cfg.ModLog.SQLitePath
	if path == "" {
		var err error
		if path, err = modlog.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("modlog db path: %w", err)
		}
	}
	store, err := modlog.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open modlog store: %w", err)
	}
	return store, nil
}
