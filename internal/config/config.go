// Package config loads and manages threadbot configuration.
// Configuration source priority (highest to lowest):
// 1. Command-line flags (applied by cmd)
// 2. Environment variables (LLM_API_KEY, THREADBOT_PROVIDER, DISCORD_BOT_TOKEN, etc.),
//    including those loaded from a .env file
// 3. Config file path specified via --config flag
// 4. ~/.config/threadbot/config.yaml
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/apexion-ai/threadbot/internal/prompt"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// LoadProviderDefaults parses the embedded provider table.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)
	return defs
}

var (
	// KnownProviderBaseURLs maps well-known provider names to their base URLs.
	KnownProviderBaseURLs map[string]string

	// KnownProviderModels maps well-known provider names to their default models.
	KnownProviderModels map[string]string
)

func init() {
	defs := LoadProviderDefaults()
	KnownProviderBaseURLs = make(map[string]string, len(defs))
	KnownProviderModels = make(map[string]string, len(defs))
	for name, d := range defs {
		if d.BaseURL != "" {
			KnownProviderBaseURLs[name] = d.BaseURL
		}
		if d.DefaultModel != "" {
			KnownProviderModels[name] = d.DefaultModel
		}
	}
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// BotConfig is the bot's identity and fixed prompt material.
type BotConfig struct {
	// Name is the author name of the bot's own messages.
	Name string `yaml:"name"`

	// Instructions become the prompt header. Empty = no header.
	Instructions string `yaml:"instructions"`

	// Examples are fixed example conversations placed before the real one.
	Examples []prompt.Conversation `yaml:"examples"`
}

// CompletionConfig holds sampling and token budget settings.
type CompletionConfig struct {
	MaxTotalTokens   int     `yaml:"max_total_tokens"`  // prompt + reply ceiling
	ReservedTokens   int     `yaml:"reserved_tokens"`   // held back for the reply
	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"top_p"`
	MaxTokens        int     `yaml:"max_tokens"`        // max new tokens per reply
	TimeoutSec       int     `yaml:"timeout_sec"`       // per request, 0 = none
	ModerationWindow int     `yaml:"moderation_window"` // trailing characters sent to moderation
	Concurrency      int     `yaml:"concurrency"`       // parallel requests for `complete`
}

// ModerationConfig holds moderation classifier settings.
type ModerationConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"` // empty = reuse the OpenAI provider key
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Blocked and Flagged override per-category thresholds
	// (e.g. "violence/graphic": 0.8). Missing categories keep their defaults.
	Blocked map[string]float64 `yaml:"blocked"`
	Flagged map[string]float64 `yaml:"flagged"`
}

// DiscordConfig holds Discord transport settings.
type DiscordConfig struct {
	Token                  string `yaml:"token"`
	ModerationLogChannelID string `yaml:"moderation_log_channel_id"`
	HistoryLimit           int    `yaml:"history_limit"`
	ClosedPrefix           string `yaml:"closed_prefix"`
}

// ModLogConfig holds the local moderation audit store settings.
type ModLogConfig struct {
	Disabled   bool   `yaml:"disabled"`
	SQLitePath string `yaml:"sqlite_path"` // empty = ~/.local/share/threadbot/modlog.db
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	JSON  bool   `yaml:"json"`
}

// Config is the complete configuration structure for threadbot.
type Config struct {
	// Provider is the active provider name (e.g. "openai", "openai-legacy", "anthropic", "deepseek").
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// ContextWindows overrides model context sizes. Keys are exact model
	// names or globs ("gpt-4o*").
	ContextWindows map[string]int `yaml:"context_windows"`

	Bot        BotConfig        `yaml:"bot"`
	Completion CompletionConfig `yaml:"completion"`
	Moderation ModerationConfig `yaml:"moderation"`
	Discord    DiscordConfig    `yaml:"discord"`
	ModLog     ModLogConfig     `yaml:"modlog"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "openai",
		Providers: make(map[string]*ProviderConfig),
		Bot: BotConfig{
			Name: "Bot",
		},
		Completion: CompletionConfig{
			MaxTotalTokens:   4096,
			ReservedTokens:   512,
			Temperature:      1.0,
			TopP:             0.9,
			MaxTokens:        512,
			TimeoutSec:       60,
			ModerationWindow: 500,
			Concurrency:      4,
		},
		Moderation: ModerationConfig{
			Enabled: true,
		},
		Discord: DiscordConfig{
			HistoryLimit: 30,
			ClosedPrefix: "❌",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.config/threadbot/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "threadbot", "config.yaml")
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultPath()
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, or an empty config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// ActiveProvider returns the active provider's settings with built-in
// defaults filled in. The model resolves as: top-level model, then the
// provider's model, then the provider's known default.
func (c *Config) ActiveProvider() ProviderConfig {
	pc := *c.GetProviderConfig(c.Provider)
	if pc.BaseURL == "" {
		pc.BaseURL = KnownProviderBaseURLs[c.Provider]
	}
	switch {
	case c.Model != "":
		pc.Model = c.Model
	case pc.Model == "":
		pc.Model = KnownProviderModels[c.Provider]
	}
	return pc
}

// ModerationKey returns the API key for the OpenAI moderation endpoint.
func (c *Config) ModerationKey() string {
	if c.Moderation.APIKey != "" {
		return c.Moderation.APIKey
	}
	if k := c.GetProviderConfig("openai").APIKey; k != "" {
		return k
	}
	return c.GetProviderConfig("openai-legacy").APIKey
}

// Validate reports settings that would make every request fail.
func (c *Config) Validate() error {
	var errs []error
	cc := c.Completion
	if cc.MaxTotalTokens <= 0 {
		errs = append(errs, fmt.Errorf("completion.max_total_tokens must be positive, got %d", cc.MaxTotalTokens))
	}
	if cc.ReservedTokens < 0 || cc.ReservedTokens >= cc.MaxTotalTokens {
		errs = append(errs, fmt.Errorf("completion.reserved_tokens must be in [0, %d), got %d", cc.MaxTotalTokens, cc.ReservedTokens))
	}
	if cc.Temperature < 0 || cc.Temperature > 2 {
		errs = append(errs, fmt.Errorf("completion.temperature must be in [0, 2], got %g", cc.Temperature))
	}
	if cc.TopP < 0 || cc.TopP > 1 {
		errs = append(errs, fmt.Errorf("completion.top_p must be in [0, 1], got %g", cc.TopP))
	}
	if cc.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("completion.max_tokens must be at least 1, got %d", cc.MaxTokens))
	}
	if cc.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("completion.concurrency must be at least 1, got %d", cc.Concurrency))
	}
	if c.Bot.Name == "" {
		errs = append(errs, errors.New("bot.name must not be empty"))
	}
	for _, tbl := range []map[string]float64{c.Moderation.Blocked, c.Moderation.Flagged} {
		for cat, v := range tbl {
			if v < 0 || v > 1 {
				errs = append(errs, fmt.Errorf("moderation threshold for %q must be in [0, 1], got %g", cat, v))
			}
		}
	}
	return errors.Join(errs...)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Provider selection first so the generic keys land on the right provider.
	if v := os.Getenv("THREADBOT_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("THREADBOT_MODEL"); v != "" {
		cfg.Model = v
	}

	// Generic overrides
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		providerEntry(cfg, cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		providerEntry(cfg, cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" && os.Getenv("THREADBOT_MODEL") == "" {
		cfg.Model = v
	}

	// Vendor-specific keys
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		for _, name := range []string{"openai", "openai-legacy"} {
			if pc := providerEntry(cfg, name); pc.APIKey == "" {
				pc.APIKey = v
			}
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		if pc := providerEntry(cfg, "anthropic"); pc.APIKey == "" {
			pc.APIKey = v
		}
	}

	// Discord
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_MODERATION_CHANNEL"); v != "" {
		cfg.Discord.ModerationLogChannelID = v
	}
}

func providerEntry(cfg *Config, name string) *ProviderConfig {
	if cfg.Providers[name] == nil {
		cfg.Providers[name] = &ProviderConfig{}
	}
	return cfg.Providers[name]
}
