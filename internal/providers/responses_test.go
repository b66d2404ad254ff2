package providers

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/claude-proxy/internal/messages"
)

func TestResponses_BuildUpstreamRequest_ReasoningStoreAndWebSearch(t *testing.T) {
	adapter := NewResponses("high")

	req := &messages.Request{
		Model: "gpt-5.3-codex",
		Messages: []messages.Message{
			{Role: "user", Content: []messages.ContentBlock{{Type: messages.BlockText, Text: "hi"}}},
		},
	}

	httpReq, err := adapter.BuildUpstreamRequest(context.Background(), req, "https://chatgpt.com/backend-api/codex", "sk-test", "low")
	require.NoError(t, err)
	assert.Regexp(t, `/responses$`, httpReq.URL.String())
	assert.Equal(t, "codex_cli_rs", httpReq.Header.Get("originator"))
	assert.NotEmpty(t, httpReq.Header.Get("User-Agent"))

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, false, decoded["store"])

	reasoning := decoded["reasoning"].(map[string]any)
	assert.Equal(t, "low", reasoning["effort"])
	assert.Equal(t, "auto", reasoning["summary"])

	tools := decoded["tools"].([]any)
	var hasWebSearch bool
	for _, tl := range tools {
		if tl.(map[string]any)["type"] == "web_search" {
			hasWebSearch = true
		}
	}
	assert.True(t, hasWebSearch)
}

func TestResponses_BuildUpstreamRequest_DefaultsEffortWhenUnset(t *testing.T) {
	adapter := NewResponses("high")

	req := &messages.Request{Model: "gpt-5.3-codex"}

	httpReq, err := adapter.BuildUpstreamRequest(context.Background(), req, "https://chatgpt.com/backend-api/codex", "sk-test", "")
	require.NoError(t, err)

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	reasoning := decoded["reasoning"].(map[string]any)
	assert.Equal(t, "high", reasoning["effort"])
}
