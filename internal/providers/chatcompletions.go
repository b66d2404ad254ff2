package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Davincible/claude-proxy/internal/messages"
	"github.com/Davincible/claude-proxy/internal/sse"
)

// ChatCompletions adapts the OpenAI Chat Completions wire format
// (/v1/chat/completions), shared by direct OpenAI-key access and
// OpenRouter (which is wire-compatible plus a `reasoning` delta field).
type ChatCompletions struct {
	name           string
	path           string
	extraHeaders   map[string]string
	includeReasoning bool // OpenRouter streams `delta.reasoning` in addition to `delta.content`
}

func NewChatCompletions(name string) *ChatCompletions {
	return &ChatCompletions{name: name, path: "/chat/completions"}
}

func NewOpenRouter(referer, title string) *ChatCompletions {
	headers := map[string]string{}
	if referer != "" {
		headers["HTTP-Referer"] = referer
	}
	if title != "" {
		headers["X-Title"] = title
	}
	return &ChatCompletions{name: "openrouter", path: "/chat/completions", extraHeaders: headers, includeReasoning: true}
}

func (c *ChatCompletions) Name() string           { return c.name }
func (c *ChatCompletions) SupportsStreaming() bool { return true }

// --- request translation: Protocol-A -> OpenAI chat completions ---

type chatMessage struct {
	Role       string          `json:"role"`
	Content    any             `json:"content,omitempty"`
	ToolCalls  []chatToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

type chatToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function chatToolCallFn  `json:"function"`
}

type chatToolCallFn struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatToolSpec `json:"function"`
}

type chatToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
	ReasoningEffort string    `json:"reasoning_effort,omitempty"`
}

func (c *ChatCompletions) BuildUpstreamRequest(ctx context.Context, req *messages.Request, endpoint, apiKey, effort string) (*http.Request, error) {
	out := chatRequest{
		Model:           req.Model,
		Stream:          req.Stream,
		MaxTokens:       req.MaxTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		Stop:            req.StopSequences,
		ReasoningEffort: effort,
	}

	if len(req.System) > 0 {
		var sysText string
		if err := json.Unmarshal(req.System, &sysText); err != nil {
			// system can also be a content-block array; flatten its text.
			var blocks []messages.ContentBlock
			if err := json.Unmarshal(req.System, &blocks); err == nil {
				sysText = flattenText(blocks)
			}
		}
		if sysText != "" {
			out.Messages = append(out.Messages, chatMessage{Role: "system", Content: sysText})
		}
	}

	for _, m := range req.Messages {
		out.Messages = append(out.Messages, translateMessageToChat(m)...)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, chatTool{
			Type: "function",
			Function: chatToolSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Type {
		case "auto":
			out.ToolChoice = "auto"
		case "any":
			out.ToolChoice = "required"
		case "none":
			out.ToolChoice = "none"
		case "tool":
			out.ToolChoice = map[string]any{"type": "function", "function": map[string]string{"name": req.ToolChoice.Name}}
		}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal chat completions request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+c.path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat completions request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	for k, v := range c.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

func translateMessageToChat(m messages.Message) []chatMessage {
	var out []chatMessage

	switch m.Role {
	case "user":
		var toolResults []chatMessage
		var textParts []string
		var imageParts []any

		for _, b := range m.Content {
			switch b.Type {
			case messages.BlockText:
				textParts = append(textParts, b.Text)
			case messages.BlockImage:
				if b.Source != nil {
					url := b.Source.URL
					if url == "" && b.Source.Data != "" {
						url = "data:" + b.Source.MediaType + ";base64," + b.Source.Data
					}
					imageParts = append(imageParts, map[string]any{
						"type":      "image_url",
						"image_url": map[string]string{"url": url},
					})
				}
			case messages.BlockToolResult:
				content := ""
				var asString string
				if err := json.Unmarshal(b.Content, &asString); err == nil {
					content = asString
				} else {
					content = string(b.Content)
				}
				toolResults = append(toolResults, chatMessage{
					Role:       "tool",
					Content:    content,
					ToolCallID: sse.ConvertToolCallID(b.ToolUseID, false),
				})
			}
		}

		switch {
		case len(imageParts) > 0:
			parts := make([]any, 0, len(imageParts)+1)
			if len(textParts) > 0 {
				parts = append(parts, map[string]any{"type": "text", "text": strings.Join(textParts, "\n")})
			}
			parts = append(parts, imageParts...)
			out = append(out, chatMessage{Role: "user", Content: parts})
		case len(textParts) > 0:
			out = append(out, chatMessage{Role: "user", Content: strings.Join(textParts, "\n")})
		}
		out = append(out, toolResults...)

	case "assistant":
		msg := chatMessage{Role: "assistant"}
		var textParts []string

		for _, b := range m.Content {
			switch b.Type {
			case messages.BlockText:
				textParts = append(textParts, b.Text)
			case messages.BlockToolUse:
				msg.ToolCalls = append(msg.ToolCalls, chatToolCall{
					ID:   sse.ConvertToolCallID(b.ID, false),
					Type: "function",
					Function: chatToolCallFn{
						Name:      b.Name,
						Arguments: string(b.Input),
					},
				})
			}
		}

		if len(textParts) > 0 {
			msg.Content = strings.Join(textParts, "\n")
		}

		out = append(out, msg)
	}

	return out
}

func flattenText(blocks []messages.ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == messages.BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// --- response translation: OpenAI chat completions -> Protocol-A ---

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *ChatCompletions) TranslateResponse(body []byte) (*messages.Response, error) {
	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", c.name, err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("%s error: %s", c.name, resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s response has no choices", c.name)
	}

	choice := resp.Choices[0]

	out := &messages.Response{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
		Usage: messages.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		StopReason: translateFinishReason(choice.FinishReason),
	}

	if s, ok := choice.Message.Content.(string); ok && s != "" {
		out.Content = append(out.Content, messages.ContentBlock{Type: messages.BlockText, Text: s})
	}

	for _, tc := range choice.Message.ToolCalls {
		out.Content = append(out.Content, messages.ContentBlock{
			Type:  messages.BlockToolUse,
			ID:    sse.ConvertToolCallID(tc.ID, true),
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}

	return out, nil
}

func translateFinishReason(reason string) string {
	switch reason {
	case "stop":
		return messages.StopEndTurn
	case "length":
		return messages.StopMaxTokens
	case "tool_calls", "function_call":
		return messages.StopToolUse
	case "content_filter":
		return messages.StopEndTurn
	default:
		return messages.StopEndTurn
	}
}

// --- streaming translation ---

type chatStreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *ChatCompletions) TranslateChunk(chunk []byte, state *sse.State) ([]sse.Event, error) {
	var data chatStreamChunk
	if err := json.Unmarshal(chunk, &data); err != nil {
		return nil, fmt.Errorf("parse %s stream chunk: %w", c.name, err)
	}

	if state.Model == "" && data.Model != "" {
		state.Model = data.Model
	}

	var events []sse.Event

	if len(data.Choices) == 0 {
		return events, nil
	}

	choice := data.Choices[0]

	if c.includeReasoning && choice.Delta.Reasoning != "" {
		ev, err := state.EnsureMessageStart()
		if err != nil {
			return nil, err
		}
		appendIfPresent(&events, ev)

		block, startEv, err := state.OpenTextLike(sse.BlockThinking)
		if err != nil {
			return nil, err
		}
		appendIfPresent(&events, startEv)

		deltaEv, err := state.TextDelta(block, choice.Delta.Reasoning)
		if err != nil {
			return nil, err
		}
		appendIfPresent(&events, deltaEv)
	}

	if choice.Delta.Content != "" {
		ev, err := state.EnsureMessageStart()
		if err != nil {
			return nil, err
		}
		appendIfPresent(&events, ev)

		block, startEv, err := state.OpenTextLike(sse.BlockText)
		if err != nil {
			return nil, err
		}
		appendIfPresent(&events, startEv)

		deltaEv, err := state.TextDelta(block, choice.Delta.Content)
		if err != nil {
			return nil, err
		}
		appendIfPresent(&events, deltaEv)
	}

	for _, tc := range choice.Delta.ToolCalls {
		block, ok := state.ToolBlockByUpstreamIndex(tc.Index)
		if !ok {
			ev, err := state.EnsureMessageStart()
			if err != nil {
				return nil, err
			}
			appendIfPresent(&events, ev)

			newBlock, startEv, err := state.OpenToolUse(sse.ConvertToolCallID(tc.ID, true), tc.Function.Name)
			if err != nil {
				return nil, err
			}
			appendIfPresent(&events, startEv)
			block = newBlock
			state.RegisterToolBlockIndex(tc.Index, block)
		}

		if tc.Function.Arguments != "" {
			deltaEv, err := state.ToolArgumentsDelta(block, block.Arguments+tc.Function.Arguments)
			if err != nil {
				return nil, err
			}
			appendIfPresent(&events, deltaEv)
		}
	}

	if choice.FinishReason != nil {
		outputTokens := 0
		if data.Usage != nil {
			outputTokens = data.Usage.CompletionTokens
		}

		finishEvents, err := state.Finish(translateFinishReason(*choice.FinishReason), outputTokens)
		if err != nil {
			return nil, err
		}
		events = append(events, finishEvents...)
	}

	return events, nil
}

func appendIfPresent(events *[]sse.Event, ev sse.Event) {
	if ev != nil {
		*events = append(*events, ev)
	}
}
