package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute_PassthroughPrefixes(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		expected Provider
	}{
		{"claude prefix", "claude-3-5-sonnet-20241022", ProviderPassthroughAnthropic},
		{"glm prefix", "glm-4.6", ProviderPassthroughGLM},
		{"case insensitive claude", "CLAUDE-opus-4", ProviderPassthroughAnthropic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := Route(Config{}, tt.model, 0)
			assert.Equal(t, tt.expected, sel.Provider)
			assert.Equal(t, tt.model, sel.Model)
		})
	}
}

func TestRoute_ExplicitAddressing(t *testing.T) {
	sel := Route(Config{}, "openrouter:qwen/qwen3-coder", 0)
	assert.Equal(t, ProviderOpenRouter, sel.Provider)
	assert.Equal(t, "qwen/qwen3-coder", sel.Model)

	sel = Route(Config{}, "gemini:gemini-2.5-pro", 0)
	assert.Equal(t, ProviderGemini, sel.Provider)
	assert.Equal(t, "gemini-2.5-pro", sel.Model)
}

func TestRoute_ReasoningEffortSuffix(t *testing.T) {
	sel := Route(Config{}, "chat-completions:gpt-5@high", 0)
	assert.Equal(t, ProviderChatCompletions, sel.Provider)
	assert.Equal(t, "gpt-5", sel.Model)
	assert.Equal(t, "high", sel.Effort)
}

func TestRoute_ReasoningEffortSuffix_XHigh(t *testing.T) {
	sel := Route(Config{}, "chat-completions:gpt-5@xhigh", 0)
	assert.Equal(t, ProviderChatCompletions, sel.Provider)
	assert.Equal(t, "gpt-5", sel.Model)
	assert.Equal(t, "xhigh", sel.Effort)
}

func TestRoute_ReasoningEffortSuffix_UnknownNotStripped(t *testing.T) {
	sel := Route(Config{}, "chat-completions:gpt-5@foo", 0)
	assert.Equal(t, "gpt-5@foo", sel.Model)
	assert.Equal(t, "", sel.Effort)
}

func TestParseSelection(t *testing.T) {
	sel, ok := ParseSelection("codex-responses:gpt-5.3-codex")
	assert.True(t, ok)
	assert.Equal(t, ProviderResponsesAPI, sel.Provider)
	assert.Equal(t, "gpt-5.3-codex", sel.Model)

	sel, ok = ParseSelection("glm-4.6")
	assert.True(t, ok)
	assert.Equal(t, ProviderPassthroughGLM, sel.Provider)

	_, ok = ParseSelection("not-a-known-provider")
	assert.False(t, ok)
}

func TestRoute_Alias(t *testing.T) {
	cfg := Config{
		Aliases: map[string]Selection{
			"think": {Provider: ProviderResponsesAPI, Model: "o3"},
		},
	}
	sel := Route(cfg, "think", 0)
	assert.Equal(t, ProviderResponsesAPI, sel.Provider)
	assert.Equal(t, "o3", sel.Model)
}

func TestRoute_LongContextFallback(t *testing.T) {
	cfg := Config{
		LongContext: Selection{Provider: ProviderGemini, Model: "gemini-2.5-pro"},
	}
	sel := Route(cfg, "some-unknown-model", longContextTokenThreshold+1)
	assert.Equal(t, ProviderGemini, sel.Provider)
}

func TestRoute_DefaultFallback(t *testing.T) {
	cfg := Config{
		Default: Selection{Provider: ProviderOpenRouter},
	}
	sel := Route(cfg, "some-unknown-model", 0)
	assert.Equal(t, ProviderOpenRouter, sel.Provider)
	assert.Equal(t, "some-unknown-model", sel.Model)
}

func TestRoute_FinalFallbackIsPassthroughGLM(t *testing.T) {
	sel := Route(Config{}, "totally-unrouted-model", 0)
	assert.Equal(t, ProviderPassthroughGLM, sel.Provider)
	assert.Equal(t, "totally-unrouted-model", sel.Model)
}

func TestCountInputTokens(t *testing.T) {
	n := CountInputTokens("hello world, this is a test of token counting")
	assert.Greater(t, n, 0)
}
