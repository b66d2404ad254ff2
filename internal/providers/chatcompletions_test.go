package providers

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/claude-proxy/internal/messages"
	"github.com/Davincible/claude-proxy/internal/sse"
)

func TestChatCompletions_BuildUpstreamRequest(t *testing.T) {
	adapter := NewChatCompletions("openai")

	req := &messages.Request{
		Model:     "gpt-5",
		MaxTokens: 1024,
		Messages: []messages.Message{
			{Role: "user", Content: []messages.ContentBlock{{Type: messages.BlockText, Text: "hello"}}},
		},
	}

	httpReq, err := adapter.BuildUpstreamRequest(context.Background(), req, "https://api.openai.com/v1", "sk-test", "high")
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com/v1/chat/completions", httpReq.URL.String())
	assert.Equal(t, "Bearer sk-test", httpReq.Header.Get("Authorization"))

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"gpt-5"`)
	assert.Contains(t, string(body), `"hello"`)
	assert.Contains(t, string(body), `"reasoning_effort":"high"`)
}

func TestChatCompletions_TranslateResponse(t *testing.T) {
	adapter := NewChatCompletions("openai")

	body := []byte(`{
		"id": "chatcmpl-1",
		"model": "gpt-5",
		"choices": [{
			"message": {"role": "assistant", "content": "hi there"},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5}
	}`)

	resp, err := adapter.TranslateResponse(body)
	require.NoError(t, err)
	assert.Equal(t, messages.StopEndTurn, resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "hi there", resp.Content[0].Text)
	assert.Equal(t, 10, resp.Usage.InputTokens)
}

func TestChatCompletions_TranslateChunk_TextThenFinish(t *testing.T) {
	adapter := NewChatCompletions("openai")
	state := sse.NewState("gpt-5")

	events, err := adapter.TranslateChunk([]byte(`{"id":"1","choices":[{"delta":{"content":"Hel"}}]}`), state)
	require.NoError(t, err)
	assert.NotEmpty(t, events) // message_start + content_block_start + delta

	events, err = adapter.TranslateChunk([]byte(`{"id":"1","choices":[{"delta":{"content":"lo"}}]}`), state)
	require.NoError(t, err)
	assert.Len(t, events, 1, "no new block, just a delta")

	reason := "stop"
	events, err = adapter.TranslateChunk([]byte(`{"id":"1","choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"completion_tokens":2}}`), state)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
	_ = reason
}

func TestChatCompletions_TranslateChunk_ToolCall(t *testing.T) {
	adapter := NewChatCompletions("openai")
	state := sse.NewState("gpt-5")

	_, err := adapter.TranslateChunk([]byte(`{"id":"1","choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_abc","function":{"name":"get_weather","arguments":""}}]}}]}`), state)
	require.NoError(t, err)

	events, err := adapter.TranslateChunk([]byte(`{"id":"1","choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`), state)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}
