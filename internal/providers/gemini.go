package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Davincible/claude-proxy/internal/messages"
	"github.com/Davincible/claude-proxy/internal/sse"
)

// AuthMode selects which of Gemini's two entry points this adapter
// instance talks to: a plain API-key generateContent call, or the
// workspace-OAuth Cloud Code backend, which additionally requires a
// provisioned project id header.
type AuthMode int

const (
	AuthAPIKey AuthMode = iota
	AuthWorkspaceOAuth
)

// Gemini adapts Google's :streamGenerateContent/:generateContent endpoints.
// The two AuthMode values share message/tool/thinking translation but diverge
// on the wire: API-key mode posts a geminiRequest directly to the public
// generative-language host with a native systemInstruction field, while
// workspace-OAuth mode posts to the internal Cloud Code Assist host with the
// request wrapped in an envelope ({model, project, user_prompt_id, request})
// whose inner schema has no systemInstruction field at all — so the system
// prompt is instead prepended as a bracketed instructions block on the first
// user turn.
type Gemini struct {
	mode      AuthMode
	projectID string // only used in AuthWorkspaceOAuth mode
}

func NewGeminiAPIKey() *Gemini { return &Gemini{mode: AuthAPIKey} }

func NewGeminiWorkspace(projectID string) *Gemini {
	return &Gemini{mode: AuthWorkspaceOAuth, projectID: projectID}
}

func (g *Gemini) Name() string {
	if g.mode == AuthWorkspaceOAuth {
		return "gemini-workspace"
	}
	return "gemini"
}

func (g *Gemini) SupportsStreaming() bool { return true }

type geminiPart struct {
	Text             string                 `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall    `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
	InlineData       *geminiInlineData      `json:"inlineData,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string `json:"name"`
	Response any    `json:"response"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations,omitempty"`
	GoogleSearch         *struct{}                   `json:"google_search,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingLevel   string `json:"thinkingLevel,omitempty"`
	ThinkingBudget  int    `json:"thinkingBudget,omitempty"`
	IncludeThoughts bool   `json:"includeThoughts,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float64              `json:"temperature,omitempty"`
	TopP            *float64              `json:"topP,omitempty"`
	TopK            *int                  `json:"topK,omitempty"`
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	StopSequences   []string              `json:"stopSequences,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Tools             []geminiTool           `json:"tools,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

// geminiWorkspaceEnvelope is the outer shape the Cloud Code Assist backend
// expects: the generateContent body is nested under "request" alongside the
// caller's model name and, once onboarded, its provisioned project id.
type geminiWorkspaceEnvelope struct {
	Model        string        `json:"model"`
	Project      string        `json:"project,omitempty"`
	UserPromptID string        `json:"user_prompt_id"`
	Request      geminiRequest `json:"request"`
}

// geminiThinkingBudgetByEffort is the "2.5" family token-budget mapping.
var geminiThinkingBudgetByEffort = map[string]int{
	"low": 1024, "medium": 8192, "high": 32768, "xhigh": 65536,
}

// geminiMediumOnlyLowHighModel is the one "3.x" model that only accepts
// LOW or HIGH thinkingLevel values; a requested MEDIUM is promoted to HIGH.
const geminiMediumOnlyLowHighModel = "gemini-3-pro-preview"

func thinkingConfigFor(model, effort string) *geminiThinkingConfig {
	lower := strings.ToLower(model)

	switch {
	case strings.Contains(lower, "2.5"):
		budget := geminiThinkingBudgetByEffort[effort]
		return &geminiThinkingConfig{ThinkingBudget: budget, IncludeThoughts: true}

	case strings.Contains(lower, "gemini-3"):
		level := effort
		if level == "xhigh" {
			level = "high" // clamped: Gemini 3.x thinkingLevel has no xhigh tier.
		}
		levelUpper := strings.ToUpper(level)
		if levelUpper == "" {
			levelUpper = "MEDIUM"
		}
		if levelUpper == "MEDIUM" && lower == geminiMediumOnlyLowHighModel {
			levelUpper = "HIGH"
		}
		return &geminiThinkingConfig{ThinkingLevel: levelUpper, IncludeThoughts: true}

	default:
		return &geminiThinkingConfig{IncludeThoughts: true}
	}
}

func (g *Gemini) BuildUpstreamRequest(ctx context.Context, req *messages.Request, endpoint, apiKey, effort string) (*http.Request, error) {
	out := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			TopK:            req.TopK,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.StopSequences,
			ThinkingConfig:  thinkingConfigFor(req.Model, effort),
		},
	}

	var sysText string
	if len(req.System) > 0 {
		_ = json.Unmarshal(req.System, &sysText)
	}

	if g.mode == AuthAPIKey && sysText != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: sysText}}}
	}

	toolNames := toolUseNamesByID(req.Messages)
	for _, m := range req.Messages {
		out.Contents = append(out.Contents, translateMessageToGemini(m, toolNames))
	}

	if g.mode == AuthWorkspaceOAuth && sysText != "" {
		injectSystemInstructionsPrefix(out.Contents, sysText)
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			sanitized, err := SanitizeGeminiSchema(t.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("sanitize gemini tool schema for %s: %w", t.Name, err)
			}
			decls = append(decls, geminiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  sanitized,
			})
		}
		out.Tools = append(out.Tools, geminiTool{FunctionDeclarations: decls})
	}
	out.Tools = append(out.Tools, geminiTool{GoogleSearch: &struct{}{}})

	action := "streamGenerateContent"
	if !req.Stream {
		action = "generateContent"
	}

	var (
		url  string
		body []byte
		err  error
	)

	switch g.mode {
	case AuthWorkspaceOAuth:
		url = fmt.Sprintf("%s:%s", endpoint, action)
		body, err = json.Marshal(geminiWorkspaceEnvelope{
			Model:        "models/" + req.Model,
			Project:      g.projectID,
			UserPromptID: uuid.NewString(),
			Request:      out,
		})
	default:
		url = fmt.Sprintf("%s/models/%s:%s", endpoint, req.Model, action)
		body, err = json.Marshal(out)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	if req.Stream {
		url += "?alt=sse"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	switch g.mode {
	case AuthAPIKey:
		httpReq.Header.Set("x-goog-api-key", apiKey)
	case AuthWorkspaceOAuth:
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
		if g.projectID != "" {
			httpReq.Header.Set("X-Goog-User-Project", g.projectID)
		}
	}

	return httpReq, nil
}

// toolUseNamesByID scans every assistant tool_use block in the message
// history so a later tool_result can recover its tool's name by id, since
// Gemini's functionResponse part carries a name rather than an id.
func toolUseNamesByID(msgs []messages.Message) map[string]string {
	names := map[string]string{}
	for _, m := range msgs {
		for _, b := range m.Content {
			if b.Type == messages.BlockToolUse && b.ID != "" {
				names[b.ID] = b.Name
			}
		}
	}
	return names
}

// injectSystemInstructionsPrefix prepends a bracketed instructions segment
// to the first text part of the first user turn, since the workspace
// request schema carries no systemInstruction field of its own.
func injectSystemInstructionsPrefix(contents []geminiContent, sysText string) {
	prefix := "[System Instructions]\n" + sysText + "\n[End System Instructions]\n\n"

	for i := range contents {
		if contents[i].Role != "user" {
			continue
		}
		for j := range contents[i].Parts {
			if contents[i].Parts[j].Text != "" {
				contents[i].Parts[j].Text = prefix + contents[i].Parts[j].Text
				return
			}
		}
		contents[i].Parts = append([]geminiPart{{Text: strings.TrimSuffix(prefix, "\n\n")}}, contents[i].Parts...)
		return
	}
}

func translateMessageToGemini(m messages.Message, toolNames map[string]string) geminiContent {
	role := "user"
	if m.Role == "assistant" {
		role = "model"
	}

	content := geminiContent{Role: role}

	for _, b := range m.Content {
		switch b.Type {
		case messages.BlockText:
			content.Parts = append(content.Parts, geminiPart{Text: b.Text})
		case messages.BlockImage:
			if b.Source != nil && b.Source.Data != "" {
				content.Parts = append(content.Parts, geminiPart{
					InlineData: &geminiInlineData{MimeType: b.Source.MediaType, Data: b.Source.Data},
				})
			}
		case messages.BlockToolUse:
			var args map[string]any
			_ = json.Unmarshal(b.Input, &args)
			content.Parts = append(content.Parts, geminiPart{
				FunctionCall: &geminiFunctionCall{Name: b.Name, Args: args},
			})
		case messages.BlockToolResult:
			var response any
			if err := json.Unmarshal(b.Content, &response); err != nil {
				response = string(b.Content)
			}
			name := toolNames[b.ToolUseID]
			if name == "" {
				name = b.ToolUseID
			}
			content.Parts = append(content.Parts, geminiPart{
				FunctionResponse: &geminiFunctionResponse{Name: name, Response: map[string]any{"content": response}},
			})
		}
	}

	return content
}

// --- response translation ---

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
	Error         *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gemini) TranslateResponse(body []byte) (*messages.Response, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("gemini error: %s", resp.Error.Message)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini response has no candidates")
	}

	candidate := resp.Candidates[0]

	out := &messages.Response{
		Type: "message",
		Role: "assistant",
		Usage: messages.Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		},
		StopReason: translateGeminiFinishReason(candidate.FinishReason),
	}

	for _, part := range candidate.Content.Parts {
		switch {
		case part.Text != "":
			out.Content = append(out.Content, messages.ContentBlock{Type: messages.BlockText, Text: part.Text})
		case part.FunctionCall != nil:
			input, _ := json.Marshal(part.FunctionCall.Args)
			out.Content = append(out.Content, messages.ContentBlock{
				Type:  messages.BlockToolUse,
				ID:    "toolu_" + part.FunctionCall.Name,
				Name:  part.FunctionCall.Name,
				Input: input,
			})
			out.StopReason = messages.StopToolUse
		}
	}

	return out, nil
}

func translateGeminiFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return messages.StopEndTurn
	case "MAX_TOKENS":
		return messages.StopMaxTokens
	default:
		return messages.StopEndTurn
	}
}

// --- streaming translation ---

func (g *Gemini) TranslateChunk(chunk []byte, state *sse.State) ([]sse.Event, error) {
	var resp geminiResponse
	if err := json.Unmarshal(chunk, &resp); err != nil {
		return nil, fmt.Errorf("parse gemini stream chunk: %w", err)
	}

	var events []sse.Event

	if len(resp.Candidates) == 0 {
		return events, nil
	}

	candidate := resp.Candidates[0]

	for _, part := range candidate.Content.Parts {
		switch {
		case part.Text != "":
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

			deltaEv, err := state.TextDelta(block, part.Text)
			if err != nil {
				return nil, err
			}
			appendIfPresent(&events, deltaEv)

		case part.FunctionCall != nil:
			startEv, err := state.EnsureMessageStart()
			if err != nil {
				return nil, err
			}
			appendIfPresent(&events, startEv)

			toolCallID := "toolu_" + part.FunctionCall.Name
			block, blockStartEv, err := state.OpenToolUse(toolCallID, part.FunctionCall.Name)
			if err != nil {
				return nil, err
			}
			appendIfPresent(&events, blockStartEv)

			args, _ := json.Marshal(part.FunctionCall.Args)
			deltaEv, err := state.ToolArgumentsDelta(block, string(args))
			if err != nil {
				return nil, err
			}
			appendIfPresent(&events, deltaEv)

			stopEv, err := state.CloseBlock(block)
			if err != nil {
				return nil, err
			}
			appendIfPresent(&events, stopEv)
		}
	}

	if candidate.FinishReason != "" {
		stopReason := translateGeminiFinishReason(candidate.FinishReason)
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall != nil {
				stopReason = messages.StopToolUse
			}
		}

		finishEvents, err := state.Finish(stopReason, resp.UsageMetadata.CandidatesTokenCount)
		if err != nil {
			return nil, err
		}
		events = append(events, finishEvents...)
	}

	return events, nil
}
