package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Davincible/claude-proxy/internal/messages"
	"github.com/Davincible/claude-proxy/internal/sse"
)

// Passthrough forwards an already-Protocol-A-shaped request to an upstream
// that speaks the protocol natively (Anthropic-direct, GLM). The request is
// re-encoded from messages.Request, so fields that type does not model are
// dropped. It is the only adapter that does no translation at all.
type Passthrough struct {
	name          string
	anthropicVersion string
}

func NewPassthrough(name, anthropicVersion string) *Passthrough {
	return &Passthrough{name: name, anthropicVersion: anthropicVersion}
}

func (p *Passthrough) Name() string             { return p.name }
func (p *Passthrough) SupportsStreaming() bool   { return true }

func (p *Passthrough) BuildUpstreamRequest(ctx context.Context, req *messages.Request, endpoint, apiKey, effort string) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal passthrough request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build passthrough request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", p.anthropicVersion)

	return httpReq, nil
}

// TranslateResponse is the identity function: the body is already
// Protocol-A shaped.
func (p *Passthrough) TranslateResponse(body []byte) (*messages.Response, error) {
	var resp messages.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse passthrough response: %w", err)
	}
	return &resp, nil
}

// TranslateChunk is unused for passthrough: the gateway relays the raw SSE
// bytes directly instead of routing them through the shared state
// machine, since there is nothing to translate.
func (p *Passthrough) TranslateChunk(chunk []byte, state *sse.State) ([]sse.Event, error) {
	return []sse.Event{sse.Event(chunk)}, nil
}
