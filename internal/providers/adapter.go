// Package providers implements the adapters that translate between the
// canonical Protocol-A request/response model (internal/messages) and
// each foreign upstream's own wire format: two OpenAI-family shapes
// (Responses API, Chat Completions), Gemini (API-key and workspace-OAuth),
// OpenRouter, and a Protocol-A-compatible byte-relay passthrough.
//
// Every adapter drives the same grammar-enforcing internal/sse encoder
// instead of hand-rolling its own event framing.
package providers

import (
	"context"
	"net/http"

	"github.com/Davincible/claude-proxy/internal/messages"
	"github.com/Davincible/claude-proxy/internal/sse"
)

// Adapter is the interface every upstream implementation satisfies.
type Adapter interface {
	Name() string

	// SupportsStreaming reports whether this adapter can translate a
	// streaming upstream response; all current adapters do.
	SupportsStreaming() bool

	// BuildUpstreamRequest turns a canonical Protocol-A request into the
	// *http.Request this adapter's upstream expects. effort is the
	// per-request reasoning level the router resolved ("", "low",
	// "medium", "high", "xhigh"); adapters that don't support reasoning
	// controls ignore it.
	BuildUpstreamRequest(ctx context.Context, req *messages.Request, endpoint, apiKey, effort string) (*http.Request, error)

	// TranslateResponse converts a full, non-streaming upstream response
	// body into the canonical Protocol-A response shape.
	TranslateResponse(body []byte) (*messages.Response, error)

	// TranslateChunk consumes one upstream streaming chunk (already
	// stripped of SSE "data: " framing) and returns zero or more rendered
	// Protocol-A SSE events through the shared state machine.
	TranslateChunk(chunk []byte, state *sse.State) ([]sse.Event, error)
}

// Registry looks adapters up by name so the gateway's dispatch path
// doesn't need a type switch at the call site.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}
