package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the claude-proxy dotenv configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize the .env configuration by prompting for provider credentials.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration with secrets masked.`,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a single configuration key",
	Long:  `Write a single key=value pair into the .env file.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)

	configShowCmd.Flags().String("format", "text", "output format: text or yaml")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("claude-proxy configuration setup")
	color.Yellow("Press enter to skip any field you don't need.")

	reader := bufio.NewReader(os.Stdin)
	prompt := func(label string) string {
		fmt.Printf("%s: ", label)
		line, _ := reader.ReadString('\n')
		return strings.TrimSpace(line)
	}

	fields := []struct {
		key   string
		label string
	}{
		{"OPENAI_API_KEY", "OpenAI API key"},
		{"OPENROUTER_API_KEY", "OpenRouter API key"},
		{"GEMINI_API_KEY", "Gemini API key"},
		{"GLM_UPSTREAM_URL", "GLM upstream URL"},
		{"ZAI_API_KEY", "Z.AI / GLM API key"},
		{"ANTHROPIC_UPSTREAM_URL", "Anthropic upstream URL"},
		{"ANTHROPIC_API_KEY", "Anthropic API key"},
	}

	for _, f := range fields {
		value := prompt(f.label)
		if value == "" {
			continue
		}
		if err := cfgMgr.Set(f.key, value); err != nil {
			return fmt.Errorf("save %s: %w", f.key, err)
		}
	}

	color.Green("Configuration saved to: %s", cfgMgr.EnvPath())
	color.Cyan("Start the gateway with: cco start")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'cco config init' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	format, _ := cmd.Flags().GetString("format")
	if format == "yaml" {
		masked := map[string]any{
			"host":                   cfg.Host,
			"port":                   cfg.Port,
			"openai_api_key":         maskString(cfg.OpenAIAPIKey),
			"openai_base_url":        cfg.OpenAIBaseURL,
			"openrouter_api_key":     maskString(cfg.OpenRouterAPIKey),
			"openrouter_base_url":    cfg.OpenRouterBaseURL,
			"gemini_api_key":         maskString(cfg.GeminiAPIKey),
			"gemini_base_url":        cfg.GeminiBaseURL,
			"glm_upstream_url":       cfg.GLMUpstreamURL,
			"zai_api_key":            maskString(cfg.ZAIAPIKey),
			"anthropic_upstream_url": cfg.AnthropicUpstreamURL,
			"anthropic_api_key":      maskString(cfg.AnthropicAPIKey),
			"anthropic_version":      cfg.AnthropicVersion,
			"vision_model":           cfg.VisionModel,
			"codex_reasoning_effort": cfg.CodexReasoningEffort,
		}

		out, err := yaml.Marshal(masked)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	color.Blue("Current configuration:")
	fmt.Printf("  %-22s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-22s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-22s: %s\n", "OpenAI API Key", maskString(cfg.OpenAIAPIKey))
	fmt.Printf("  %-22s: %s\n", "OpenRouter API Key", maskString(cfg.OpenRouterAPIKey))
	fmt.Printf("  %-22s: %s\n", "Gemini API Key", maskString(cfg.GeminiAPIKey))
	fmt.Printf("  %-22s: %s\n", "GLM Upstream URL", cfg.GLMUpstreamURL)
	fmt.Printf("  %-22s: %s\n", "Z.AI API Key", maskString(cfg.ZAIAPIKey))
	fmt.Printf("  %-22s: %s\n", "Anthropic Upstream URL", cfg.AnthropicUpstreamURL)
	fmt.Printf("  %-22s: %s\n", "Anthropic API Key", maskString(cfg.AnthropicAPIKey))
	fmt.Printf("  %-22s: %s\n", "Vision Model", cfg.VisionModel)
	fmt.Printf("  %-22s: %s\n", "Config Path", cfgMgr.EnvPath())

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if err := cfgMgr.Set(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	color.Green("Set %s", key)
	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
