package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/claude-proxy/internal/messages"
)

func TestGemini_APIKeyMode_SystemInstructionNative(t *testing.T) {
	adapter := NewGeminiAPIKey()

	req := &messages.Request{
		Model:  "gemini-2.5-pro",
		System: mustJSON(t, "be concise"),
		Messages: []messages.Message{
			{Role: "user", Content: []messages.ContentBlock{{Type: messages.BlockText, Text: "hi"}}},
		},
	}

	httpReq, err := adapter.BuildUpstreamRequest(context.Background(), req, "https://generativelanguage.googleapis.com/v1beta", "api-key", "medium")
	require.NoError(t, err)
	assert.Contains(t, httpReq.URL.String(), "/models/gemini-2.5-pro:")
	assert.Equal(t, "api-key", httpReq.Header.Get("x-goog-api-key"))

	body := readBody(t, httpReq)
	assert.Contains(t, string(body), `"systemInstruction"`)
	assert.Contains(t, string(body), `"thinkingBudget":8192`)
	assert.NotContains(t, string(body), "System Instructions")
}

func TestGemini_WorkspaceMode_EnvelopeAndInjectedSystemPrompt(t *testing.T) {
	adapter := NewGeminiWorkspace("my-project")

	req := &messages.Request{
		Model:  "gemini-3-pro-preview",
		System: mustJSON(t, "be concise"),
		Messages: []messages.Message{
			{Role: "user", Content: []messages.ContentBlock{{Type: messages.BlockText, Text: "hi"}}},
		},
	}

	httpReq, err := adapter.BuildUpstreamRequest(context.Background(), req, "https://cloudcode-pa.googleapis.com/v1internal", "access-token", "medium")
	require.NoError(t, err)
	assert.NotContains(t, httpReq.URL.String(), "/models/gemini-3-pro-preview:")
	assert.Equal(t, "Bearer access-token", httpReq.Header.Get("Authorization"))
	assert.Equal(t, "my-project", httpReq.Header.Get("X-Goog-User-Project"))

	var envelope map[string]any
	body := readBody(t, httpReq)
	require.NoError(t, json.Unmarshal(body, &envelope))

	assert.Equal(t, "models/gemini-3-pro-preview", envelope["model"])
	assert.Equal(t, "my-project", envelope["project"])
	assert.NotEmpty(t, envelope["user_prompt_id"])

	inner, ok := envelope["request"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, inner, "systemInstruction")

	contents := inner["contents"].([]any)
	firstMsg := contents[0].(map[string]any)
	parts := firstMsg["parts"].([]any)
	text := parts[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, "[System Instructions]")
	assert.Contains(t, text, "be concise")
	assert.Contains(t, text, "[End System Instructions]")
	assert.Contains(t, text, "hi")

	// gemini-3-pro-preview only accepts LOW/HIGH; a requested MEDIUM promotes to HIGH.
	genConfig := inner["generationConfig"].(map[string]any)
	thinking := genConfig["thinkingConfig"].(map[string]any)
	assert.Equal(t, "HIGH", thinking["thinkingLevel"])
}

func TestGemini_ToolResultRecoversNameFromHistory(t *testing.T) {
	adapter := NewGeminiAPIKey()

	req := &messages.Request{
		Model: "gemini-2.5-pro",
		Messages: []messages.Message{
			{Role: "user", Content: []messages.ContentBlock{{Type: messages.BlockText, Text: "look up X"}}},
			{Role: "assistant", Content: []messages.ContentBlock{
				{Type: messages.BlockToolUse, ID: "toolu_1", Name: "search", Input: json.RawMessage(`{"q":"X"}`)},
			}},
			{Role: "user", Content: []messages.ContentBlock{
				{Type: messages.BlockToolResult, ToolUseID: "toolu_1", Content: json.RawMessage(`"ok"`)},
			}},
		},
	}

	httpReq, err := adapter.BuildUpstreamRequest(context.Background(), req, "https://generativelanguage.googleapis.com/v1beta", "api-key", "")
	require.NoError(t, err)

	body := readBody(t, httpReq)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	contents := decoded["contents"].([]any)
	require.Len(t, contents, 3)
	last := contents[2].(map[string]any)
	parts := last["parts"].([]any)
	fr := parts[0].(map[string]any)["functionResponse"].(map[string]any)
	assert.Equal(t, "search", fr["name"])
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func readBody(t *testing.T, req *http.Request) []byte {
	t.Helper()
	b, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	return b
}
