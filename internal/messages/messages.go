// Package messages defines the canonical Protocol-A (Anthropic Messages
// API shaped) request/response data model that every adapter translates
// to and from.
package messages

import "encoding/json"

// ContentBlock is a tagged union over the block types Protocol-A allows
// inside a message's content array. Exactly one of the typed fields is
// populated, selected by Type.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockImage      = "image"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ImageSource carries either an inline base64 payload or a remote URL.
type ImageSource struct {
	Type      string `json:"type"` // "base64" | "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Message is one turn in the conversation.
type Message struct {
	Role    string         `json:"role"` // "user" | "assistant"
	Content []ContentBlock `json:"content"`
}

// Tool is a single callable tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolChoice constrains which, if any, tool the model must call.
type ToolChoice struct {
	Type string `json:"type"` // "auto" | "any" | "tool" | "none"
	Name string `json:"name,omitempty"`
}

// Request is the full inbound Protocol-A request body.
type Request struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	System      json.RawMessage `json:"system,omitempty"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
	TopK        *int           `json:"top_k,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Tools       []Tool         `json:"tools,omitempty"`
	ToolChoice  *ToolChoice    `json:"tool_choice,omitempty"`
	StopSequences []string     `json:"stop_sequences,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Usage mirrors Protocol-A's token accounting block.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Response is a full non-streaming Protocol-A response.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"` // "message"
	Role         string         `json:"role"` // "assistant"
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

// StopReason values, Protocol-A vocabulary.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens    = "max_tokens"
	StopToolUse      = "tool_use"
	StopStopSequence = "stop_sequence"
)

// APIError is the Protocol-A error envelope returned on non-2xx responses.
type APIError struct {
	Type  string `json:"type"` // "error"
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewAPIError(errType, message string) APIError {
	e := APIError{Type: "error"}
	e.Error.Type = errType
	e.Error.Message = message
	return e
}

// Error taxonomy shared by every upstream error response.
const (
	ErrInvalidRequest   = "invalid_request_error"
	ErrAuthentication   = "authentication_error"
	ErrPermission       = "permission_error"
	ErrNotFound         = "not_found_error"
	ErrRateLimit        = "rate_limit_error"
	ErrAPI              = "api_error"
	ErrOverloaded       = "overloaded_error"
	ErrUpstreamTimeout  = "timeout_error"
)
