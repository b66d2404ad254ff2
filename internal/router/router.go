// Package router implements the model-selection rules a Protocol-A
// request goes through before it is dispatched to a provider adapter:
// alias resolution, reasoning-effort suffix stripping, passthrough prefix
// detection, and the long-context/default fallback chain. Config.Background
// is carried but Route does not consult it.
package router

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Provider tags a selected upstream. Passthrough providers forward
// Protocol-A requests without translation; the rest go through an adapter.
type Provider string

const (
	ProviderResponsesAPI    Provider = "codex-responses"
	ProviderChatCompletions Provider = "chat-completions"
	ProviderGemini          Provider = "gemini"
	ProviderOpenRouter      Provider = "openrouter"
	ProviderPassthroughAnthropic Provider = "passthrough-anthropic"
	ProviderPassthroughGLM       Provider = "passthrough-glm"
)

// Selection is the result of routing one request: which provider handles
// it, under which model name, and at what reasoning effort (if any).
type Selection struct {
	Provider Provider
	Model    string
	Effort   string // "", "low", "medium", "high", "xhigh" — from the @LEVEL suffix
}

const longContextTokenThreshold = 60000

// Config carries the alias table and default selections a deployment
// configures: a default, a long-context fallback, and a background
// selection, plus arbitrary named aliases. Route uses the aliases, the
// default and the long-context fallback; it does not read Background.
type Config struct {
	Aliases map[string]Selection
	Default Selection
	LongContext Selection
	Background  Selection
}

var tokenEncoder *tiktoken.Tiktoken

func init() {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err == nil {
		tokenEncoder = enc
	}
}

// CountInputTokens estimates token count for the long-context routing
// rule using the cl100k_base encoding.
func CountInputTokens(text string) int {
	if tokenEncoder == nil {
		return len(text) / 4
	}
	return len(tokenEncoder.Encode(text, nil, nil))
}

// Route resolves a requested model name (and estimated input size) to a
// concrete provider selection.
func Route(cfg Config, requestedModel string, estimatedInputTokens int) Selection {
	model, effort := splitReasoningSuffix(requestedModel)

	if sel, ok := lookupAlias(cfg.Aliases, model); ok {
		sel.Effort = effort
		return sel
	}

	if sel, ok := passthroughSelection(model); ok {
		sel.Effort = effort
		return sel
	}

	if sel, ok := parseExplicit(model); ok {
		sel.Effort = effort
		return sel
	}

	if estimatedInputTokens > longContextTokenThreshold && cfg.LongContext.Provider != "" {
		sel := cfg.LongContext
		sel.Effort = effort
		return sel
	}

	if cfg.Default.Provider != "" {
		sel := cfg.Default
		if sel.Model == "" {
			sel.Model = model
		}
		sel.Effort = effort
		return sel
	}

	return Selection{Provider: ProviderPassthroughGLM, Model: requestedModel, Effort: effort}
}

// splitReasoningSuffix strips a trailing "@LEVEL" reasoning-effort
// modifier (e.g. "gpt-5@high") from a model string.
func splitReasoningSuffix(model string) (string, string) {
	if idx := strings.LastIndex(model, "@"); idx != -1 {
		effort := strings.ToLower(model[idx+1:])
		switch effort {
		case "low", "medium", "high", "xhigh":
			return model[:idx], effort
		}
	}
	return model, ""
}

func lookupAlias(aliases map[string]Selection, model string) (Selection, bool) {
	if aliases == nil {
		return Selection{}, false
	}
	sel, ok := aliases[strings.ToLower(model)]
	return sel, ok
}

// passthroughSelection detects the "claude-*"/"glm-*" prefixes that
// designate direct passthrough to a Protocol-A-compatible upstream.
func passthroughSelection(model string) (Selection, bool) {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "claude-"):
		return Selection{Provider: ProviderPassthroughAnthropic, Model: model}, true
	case strings.HasPrefix(lower, "glm-"):
		return Selection{Provider: ProviderPassthroughGLM, Model: model}, true
	}
	return Selection{}, false
}

// ParseSelection resolves one alias target or default/long-context/background
// configuration value (e.g. "codex-responses:gpt-5.3-codex", "glm-4.6", "gemini/gemini-2.5-pro")
// into a Selection, for configuration surfaces that build a Config outside of Route.
func ParseSelection(raw string) (Selection, bool) {
	model, effort := splitReasoningSuffix(raw)

	if sel, ok := passthroughSelection(model); ok {
		sel.Effort = effort
		return sel, true
	}
	if sel, ok := parseExplicit(model); ok {
		sel.Effort = effort
		return sel, true
	}
	return Selection{}, false
}

// parseExplicit parses "provider:model" or "provider/model" addressing.
func parseExplicit(model string) (Selection, bool) {
	for _, sep := range []string{":", "/"} {
		if idx := strings.Index(model, sep); idx != -1 {
			providerName := strings.ToLower(model[:idx])
			rest := model[idx+1:]
			if p, ok := parseProviderName(providerName); ok {
				return Selection{Provider: p, Model: rest}, true
			}
		}
	}
	return Selection{}, false
}

func parseProviderName(name string) (Provider, bool) {
	switch name {
	case "codex-responses", "responses":
		return ProviderResponsesAPI, true
	case "chat-completions", "openai":
		return ProviderChatCompletions, true
	case "gemini", "google":
		return ProviderGemini, true
	case "openrouter":
		return ProviderOpenRouter, true
	case "anthropic", "passthrough-anthropic":
		return ProviderPassthroughAnthropic, true
	case "glm", "zai", "passthrough-glm":
		return ProviderPassthroughGLM, true
	}
	return "", false
}
