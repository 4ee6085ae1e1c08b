package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up threadbot: choose a provider, enter your API key and Discord settings, and save the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)
	ask := func(prompt string) string {
		fmt.Print(prompt)
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}

	fmt.Println("Welcome to the threadbot configuration wizard!")
	fmt.Println()

	// Provider selection
	providers := []string{
		"openai", "openai-legacy", "anthropic", "deepseek", "groq", "kimi", "qwen",
	}
	fmt.Println("Available providers:")
	for i, p := range providers {
		fmt.Printf("  %d. %s\n", i+1, p)
	}
	selectedIdx := 0
	if n, err := strconv.Atoi(ask(fmt.Sprintf("\nSelect provider (1-%d) [1]: ", len(providers)))); err == nil && n >= 1 && n <= len(providers) {
		selectedIdx = n - 1
	}
	providerName := providers[selectedIdx]
	fmt.Printf("Selected: %s\n\n", providerName)

	apiKey := ask(fmt.Sprintf("Enter API key for %s: ", providerName))
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	configData := map[string]any{
		"provider": providerName,
		"providers": map[string]any{
			providerName: map[string]any{
				"api_key": apiKey,
			},
		},
	}

	if botName := ask("Bot name [Bot]: "); botName != "" {
		configData["bot"] = map[string]any{"name": botName}
	}

	// Moderation runs on the OpenAI endpoint; other providers need a separate key.
	if providerName != "openai" && providerName != "openai-legacy" {
		if modKey := ask("OpenAI API key for moderation (empty disables moderation): "); modKey != "" {
			configData["moderation"] = map[string]any{"api_key": modKey}
		} else {
			configData["moderation"] = map[string]any{"enabled": false}
		}
	}

	discordCfg := map[string]any{}
	if token := ask("Discord bot token (optional): "); token != "" {
		discordCfg["token"] = token
		if ch := ask("Moderation log channel ID (optional): "); ch != "" {
			discordCfg["moderation_log_channel_id"] = ch
		}
	}
	if len(discordCfg) > 0 {
		configData["discord"] = discordCfg
	}

	data, err := yaml.Marshal(configData)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Save
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("get home dir: %w", err)
	}
	configDir := filepath.Join(home, ".config", "threadbot")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("\nConfig file already exists at %s\n", configPath)
		if strings.ToLower(ask("Overwrite? [y/N]: ")) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("\nConfig saved to %s\n", configPath)
	fmt.Println("You can now run: threadbot complete transcript.yaml")
	return nil
}
