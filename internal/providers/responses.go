package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Davincible/claude-proxy/internal/creds"
	"github.com/Davincible/claude-proxy/internal/messages"
	"github.com/Davincible/claude-proxy/internal/sse"
)

// codexOriginator and codexUserAgent mirror the values the provider's own
// CLI sends; the backend has been observed to reject requests missing them.
const (
	codexOriginator = "codex_cli_rs"
	codexUserAgent  = "codex_cli_rs/0.1.0"
)

// Responses adapts OpenAI's Responses API (/v1/responses), the shape the
// ChatGPT-backed Codex OAuth upstream speaks. Its streaming events are
// typed ("response.output_text.delta", "response.completed", ...) rather
// than a single repeated delta envelope, so its TranslateChunk reads
// event.Type instead of inspecting a choices array.
type Responses struct {
	reasoningEffort string
}

func NewResponses(reasoningEffort string) *Responses {
	return &Responses{reasoningEffort: reasoningEffort}
}

func (r *Responses) Name() string            { return "codex-responses" }
func (r *Responses) SupportsStreaming() bool { return true }

type responsesInputItem struct {
	Type    string               `json:"type"`
	Role    string               `json:"role,omitempty"`
	Content []responsesContentPart `json:"content,omitempty"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output
	Output string `json:"output,omitempty"`
}

type responsesContentPart struct {
	Type string `json:"type"` // "input_text" | "output_text" | "input_image"
	Text string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type responsesRequest struct {
	Model           string               `json:"model"`
	Input           []responsesInputItem `json:"input"`
	Instructions    string               `json:"instructions,omitempty"`
	Stream          bool                 `json:"stream,omitempty"`
	Store           bool                 `json:"store"`
	MaxOutputTokens int                  `json:"max_output_tokens,omitempty"`
	Tools           []responsesTool      `json:"tools,omitempty"`
	Reasoning       *responsesReasoning  `json:"reasoning,omitempty"`
}

type responsesReasoning struct {
	Effort  string `json:"effort"`
	Summary string `json:"summary"`
}

func (r *Responses) BuildUpstreamRequest(ctx context.Context, req *messages.Request, endpoint, apiKey, effort string) (*http.Request, error) {
	if effort == "" {
		effort = r.reasoningEffort
	}
	if effort == "" {
		effort = "high"
	}

	out := responsesRequest{
		Model:           req.Model,
		Stream:          req.Stream,
		Store:           false,
		MaxOutputTokens: req.MaxTokens,
		Reasoning:       &responsesReasoning{Effort: effort, Summary: "auto"},
	}

	if len(req.System) > 0 {
		var sysText string
		_ = json.Unmarshal(req.System, &sysText)
		out.Instructions = sysText
	}

	for _, m := range req.Messages {
		out.Input = append(out.Input, translateMessageToResponsesInput(m)...)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, responsesTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	out.Tools = append(out.Tools, responsesTool{Type: "web_search"})

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal responses request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build responses request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("OpenAI-Beta", "responses=experimental")
	httpReq.Header.Set("originator", codexOriginator)
	httpReq.Header.Set("User-Agent", codexUserAgent)
	if claims, err := creds.DecodeClaims(apiKey); err == nil && claims.AccountID != "" {
		httpReq.Header.Set("chatgpt-account-id", claims.AccountID)
	}

	return httpReq, nil
}

func translateMessageToResponsesInput(m messages.Message) []responsesInputItem {
	var out []responsesInputItem

	switch m.Role {
	case "user":
		item := responsesInputItem{Type: "message", Role: "user"}

		for _, b := range m.Content {
			switch b.Type {
			case messages.BlockText:
				item.Content = append(item.Content, responsesContentPart{Type: "input_text", Text: b.Text})
			case messages.BlockImage:
				if b.Source != nil {
					url := b.Source.URL
					if url == "" && b.Source.Data != "" {
						url = "data:" + b.Source.MediaType + ";base64," + b.Source.Data
					}
					item.Content = append(item.Content, responsesContentPart{Type: "input_image", ImageURL: url})
				}
			case messages.BlockToolResult:
				var text string
				if err := json.Unmarshal(b.Content, &text); err != nil {
					text = string(b.Content)
				}
				out = append(out, responsesInputItem{
					Type:   "function_call_output",
					CallID: sse.ConvertToolCallID(b.ToolUseID, false),
					Output: text,
				})
			}
		}

		if len(item.Content) > 0 {
			out = append([]responsesInputItem{item}, out...)
		}

	case "assistant":
		item := responsesInputItem{Type: "message", Role: "assistant"}

		for _, b := range m.Content {
			switch b.Type {
			case messages.BlockText:
				item.Content = append(item.Content, responsesContentPart{Type: "output_text", Text: b.Text})
			case messages.BlockToolUse:
				out = append(out, responsesInputItem{
					Type:      "function_call",
					CallID:    sse.ConvertToolCallID(b.ID, false),
					Name:      b.Name,
					Arguments: string(b.Input),
				})
			}
		}

		if len(item.Content) > 0 {
			out = append([]responsesInputItem{item}, out...)
		}
	}

	return out
}

// --- response translation ---

type responsesOutputItem struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type responsesResponse struct {
	ID     string                `json:"id"`
	Model  string                `json:"model"`
	Output []responsesOutputItem `json:"output"`
	Usage  struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *Responses) TranslateResponse(body []byte) (*messages.Response, error) {
	var resp responsesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse responses api response: %w", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("responses api error: %s", resp.Error.Message)
	}

	out := &messages.Response{
		ID:         resp.ID,
		Type:       "message",
		Role:       "assistant",
		Model:      resp.Model,
		StopReason: messages.StopEndTurn,
		Usage: messages.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				if c.Type == "output_text" {
					out.Content = append(out.Content, messages.ContentBlock{Type: messages.BlockText, Text: c.Text})
				}
			}
		case "function_call":
			out.Content = append(out.Content, messages.ContentBlock{
				Type:  messages.BlockToolUse,
				ID:    sse.ConvertToolCallID(item.CallID, true),
				Name:  item.Name,
				Input: json.RawMessage(item.Arguments),
			})
			out.StopReason = messages.StopToolUse
		}
	}

	return out, nil
}

// --- streaming translation ---

type responsesStreamEvent struct {
	Type string `json:"type"`

	Delta string `json:"delta,omitempty"`

	Item *struct {
		Type      string `json:"type"`
		CallID    string `json:"call_id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"item,omitempty"`

	Response *responsesResponse `json:"response,omitempty"`
}

func (r *Responses) TranslateChunk(chunk []byte, state *sse.State) ([]sse.Event, error) {
	var ev responsesStreamEvent
	if err := json.Unmarshal(chunk, &ev); err != nil {
		return nil, fmt.Errorf("parse responses api stream event: %w", err)
	}

	var events []sse.Event

	switch ev.Type {
	case "response.output_text.delta":
		startEv, err := state.EnsureMessageStart()
		if err != nil {
			return nil, err
		}
		appendIfPresent(&events, startEv)

		block, blockStartEv, err := state.OpenTextLike(sse.BlockText)
		if err != nil {
			return nil, err
		}
		appendIfPresent(&events, blockStartEv)

		deltaEv, err := state.TextDelta(block, ev.Delta)
		if err != nil {
			return nil, err
		}
		appendIfPresent(&events, deltaEv)

	case "response.output_item.added":
		if ev.Item != nil && ev.Item.Type == "function_call" {
			startEv, err := state.EnsureMessageStart()
			if err != nil {
				return nil, err
			}
			appendIfPresent(&events, startEv)

			block, blockStartEv, err := state.OpenToolUse(sse.ConvertToolCallID(ev.Item.CallID, true), ev.Item.Name)
			if err != nil {
				return nil, err
			}
			appendIfPresent(&events, blockStartEv)
			state.RegisterToolBlockIndex(toolIndexHash(ev.Item.CallID), block)
		}

	case "response.function_call_arguments.delta":
		if ev.Item != nil {
			if block, ok := state.ToolBlockByUpstreamIndex(toolIndexHash(ev.Item.CallID)); ok {
				deltaEv, err := state.ToolArgumentsDelta(block, block.Arguments+ev.Delta)
				if err != nil {
					return nil, err
				}
				appendIfPresent(&events, deltaEv)
			}
		}

	case "response.completed", "response.incomplete", "response.failed":
		stopReason := messages.StopEndTurn
		outputTokens := 0
		if ev.Response != nil {
			outputTokens = ev.Response.Usage.OutputTokens
			for _, item := range ev.Response.Output {
				if item.Type == "function_call" {
					stopReason = messages.StopToolUse
				}
			}
		}

		finishEvents, err := state.Finish(stopReason, outputTokens)
		if err != nil {
			return nil, err
		}
		events = append(events, finishEvents...)
	}

	return events, nil
}

// toolIndexHash turns the Responses API's string call_id into the small
// integer key sse.State's tool-index map expects, since that map was
// designed for the chat-completions integer-index convention but Gemini
// and Responses both only ever have a stable string id to key on.
func toolIndexHash(callID string) int {
	h := 0
	for _, r := range callID {
		h = h*31 + int(r)
	}
	return h
}
