package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexion-ai/threadbot/internal/prompt"
)

var envKeys = []string{
	"LLM_API_KEY", "LLM_BASE_URL", "LLM_MODEL",
	"OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	"THREADBOT_PROVIDER", "THREADBOT_MODEL",
	"DISCORD_BOT_TOKEN", "DISCORD_MODERATION_CHANNEL",
}

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "Bot", cfg.Bot.Name)
	assert.Equal(t, 4096, cfg.Completion.MaxTotalTokens)
	assert.Equal(t, 512, cfg.Completion.ReservedTokens)
	assert.Equal(t, 1.0, cfg.Completion.Temperature)
	assert.Equal(t, 0.9, cfg.Completion.TopP)
	assert.Equal(t, 512, cfg.Completion.MaxTokens)
	assert.Equal(t, 500, cfg.Completion.ModerationWindow)
	assert.True(t, cfg.Moderation.Enabled)
	assert.Equal(t, 30, cfg.Discord.HistoryLimit)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.NotNil(t, cfg.Providers)
}

func TestLoad_ValidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
provider: anthropic
model: claude-3-5-haiku-latest
providers:
  anthropic:
    api_key: sk-ant-file
bot:
  name: Helper
  instructions: You are a helpful bot.
  examples:
    - - {author: alice, text: hi}
      - {author: Helper, text: hello alice}
completion:
  max_total_tokens: 8000
  reserved_tokens: 1000
moderation:
  enabled: false
  blocked:
    violence: 0.9
discord:
  moderation_log_channel_id: "123"
context_windows:
  "claude-3-5*": 100000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "sk-ant-file", cfg.GetProviderConfig("anthropic").APIKey)
	assert.Equal(t, "Helper", cfg.Bot.Name)
	assert.Equal(t, []prompt.Conversation{{
		{Author: "alice", Text: "hi"},
		{Author: "Helper", Text: "hello alice"},
	}}, cfg.Bot.Examples)
	assert.Equal(t, 8000, cfg.Completion.MaxTotalTokens)
	assert.Equal(t, 1000, cfg.Completion.ReservedTokens)
	assert.Equal(t, 0.9, cfg.Completion.TopP, "unset keys keep defaults")
	assert.False(t, cfg.Moderation.Enabled)
	assert.Equal(t, 0.9, cfg.Moderation.Blocked["violence"])
	assert.Equal(t, "123", cfg.Discord.ModerationLogChannelID)
	assert.Equal(t, 100000, cfg.ContextWindows["claude-3-5*"])
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "provider: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config file")
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("THREADBOT_PROVIDER", "deepseek")
	t.Setenv("LLM_API_KEY", "sk-generic")
	t.Setenv("LLM_BASE_URL", "https://proxy.example/v1")
	t.Setenv("LLM_MODEL", "deepseek-reasoner")
	t.Setenv("DISCORD_BOT_TOKEN", "discord-token")
	t.Setenv("DISCORD_MODERATION_CHANNEL", "999")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "deepseek", cfg.Provider)
	assert.Equal(t, "sk-generic", cfg.GetProviderConfig("deepseek").APIKey, "generic key lands on the env-selected provider")
	assert.Equal(t, "https://proxy.example/v1", cfg.GetProviderConfig("deepseek").BaseURL)
	assert.Equal(t, "deepseek-reasoner", cfg.Model)
	assert.Equal(t, "discord-token", cfg.Discord.Token)
	assert.Equal(t, "999", cfg.Discord.ModerationLogChannelID)
}

func TestEnvOverrides_ModelPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_MODEL", "from-llm")
	t.Setenv("THREADBOT_MODEL", "from-threadbot")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "from-threadbot", cfg.Model)
}

func TestEnvOverrides_VendorKeysFillGaps(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	path := writeConfig(t, `
providers:
  anthropic:
    api_key: sk-ant-file
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-openai", cfg.GetProviderConfig("openai").APIKey)
	assert.Equal(t, "sk-openai", cfg.GetProviderConfig("openai-legacy").APIKey)
	assert.Equal(t, "sk-ant-file", cfg.GetProviderConfig("anthropic").APIKey, "file key wins over vendor env key")
}

func TestActiveProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "deepseek"
	cfg.Providers["deepseek"] = &ProviderConfig{APIKey: "k"}

	pc := cfg.ActiveProvider()
	assert.Equal(t, "k", pc.APIKey)
	assert.Equal(t, "https://api.deepseek.com/v1", pc.BaseURL)
	assert.Equal(t, "deepseek-chat", pc.Model)

	cfg.Providers["deepseek"].Model = "deepseek-coder"
	assert.Equal(t, "deepseek-coder", cfg.ActiveProvider().Model)

	cfg.Model = "override"
	assert.Equal(t, "override", cfg.ActiveProvider().Model)
}

func TestModerationKey(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.ModerationKey())

	cfg.Providers["openai-legacy"] = &ProviderConfig{APIKey: "legacy"}
	assert.Equal(t, "legacy", cfg.ModerationKey())

	cfg.Providers["openai"] = &ProviderConfig{APIKey: "chat"}
	assert.Equal(t, "chat", cfg.ModerationKey())

	cfg.Moderation.APIKey = "dedicated"
	assert.Equal(t, "dedicated", cfg.ModerationKey())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"reserved too large", func(c *Config) { c.Completion.ReservedTokens = 4096 }, "reserved_tokens"},
		{"zero ceiling", func(c *Config) { c.Completion.MaxTotalTokens = 0 }, "max_total_tokens"},
		{"temperature", func(c *Config) { c.Completion.Temperature = 3 }, "temperature"},
		{"top_p", func(c *Config) { c.Completion.TopP = 1.5 }, "top_p"},
		{"bot name", func(c *Config) { c.Bot.Name = "" }, "bot.name"},
		{"threshold", func(c *Config) { c.Moderation.Flagged = map[string]float64{"hate": 2} }, `"hate"`},
		{"zero max tokens", func(c *Config) { c.Completion.MaxTokens = 0 }, "max_tokens"},
		{"zero concurrency", func(c *Config) { c.Completion.Concurrency = 0 }, "concurrency"},
		{"negative concurrency", func(c *Config) { c.Completion.Concurrency = -2 }, "concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_ExplicitZerosAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Completion.ReservedTokens = 0
	cfg.Completion.Temperature = 0
	cfg.Completion.TopP = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("THREADBOT_PROVIDER=anthropic\nDISCORD_BOT_TOKEN=from-file\n"), 0600))
	t.Setenv("DISCORD_BOT_TOKEN", "already-set")
	// godotenv only fills variables that are absent from the environment.
	require.NoError(t, os.Unsetenv("THREADBOT_PROVIDER"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envPath))

	assert.Equal(t, "anthropic", os.Getenv("THREADBOT_PROVIDER"))
	assert.Equal(t, "already-set", os.Getenv("DISCORD_BOT_TOKEN"), "existing variables are not overridden")
}

func TestKnownProviders(t *testing.T) {
	assert.Equal(t, "gpt-3.5-turbo-instruct", KnownProviderModels["openai-legacy"])
	assert.Equal(t, "https://api.groq.com/openai/v1", KnownProviderBaseURLs["groq"])
	_, hasOpenAIURL := KnownProviderBaseURLs["openai"]
	assert.False(t, hasOpenAIURL, "empty base URLs fall through to the SDK default")
}
