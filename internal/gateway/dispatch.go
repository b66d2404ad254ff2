package gateway

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/Davincible/claude-proxy/internal/config"
	"github.com/Davincible/claude-proxy/internal/creds"
	"github.com/Davincible/claude-proxy/internal/messages"
	"github.com/Davincible/claude-proxy/internal/oauth"
	"github.com/Davincible/claude-proxy/internal/providers"
	"github.com/Davincible/claude-proxy/internal/router"
	"github.com/Davincible/claude-proxy/internal/sse"
	"github.com/Davincible/claude-proxy/internal/state"
	"github.com/Davincible/claude-proxy/internal/vision"
)

type dispatchHandler struct {
	cfgMgr     *config.Manager
	logger     *slog.Logger
	registry   *providers.Registry
	credsStore *creds.Store
	active     *state.ActiveSelection
	vision     *vision.Describer
}

func (h *dispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeAPIError(w, http.StatusBadRequest, messages.ErrInvalidRequest, "could not read request body")
		return
	}

	var req messages.Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeAPIError(w, http.StatusBadRequest, messages.ErrInvalidRequest, "malformed request body: "+err.Error())
		return
	}

	cfg := h.cfgMgr.Get()

	sel := router.Route(cfg.RouterConfig(), req.Model, estimateTokens(req))
	h.active.Set(sel)

	adapterName, endpoint, apiKey, err := h.resolveUpstream(r.Context(), cfg, sel)
	if err != nil {
		h.writeAPIError(w, http.StatusServiceUnavailable, messages.ErrAPI, err.Error())
		return
	}

	adapter, ok := h.registry.Get(adapterName)
	if !ok {
		h.writeAPIError(w, http.StatusInternalServerError, messages.ErrAPI, fmt.Sprintf("no adapter registered for %q", adapterName))
		return
	}

	if sel.Provider == router.ProviderPassthroughGLM {
		h.applyVisionFallback(r.Context(), &req)
	}

	req.Model = sel.Model

	upstreamReq, err := adapter.BuildUpstreamRequest(r.Context(), &req, endpoint, apiKey, sel.Effort)
	if err != nil {
		h.writeAPIError(w, http.StatusInternalServerError, messages.ErrAPI, err.Error())
		return
	}
	upstreamReq.Header.Set("Accept-Encoding", "br, gzip")

	upstreamResp, err := http.DefaultClient.Do(upstreamReq)
	if err != nil {
		h.writeAPIError(w, http.StatusBadGateway, messages.ErrAPI, "upstream request failed: "+err.Error())
		return
	}
	defer upstreamResp.Body.Close()

	reader, err := decompress(upstreamResp)
	if err != nil {
		h.writeAPIError(w, http.StatusBadGateway, messages.ErrAPI, err.Error())
		return
	}

	if upstreamResp.StatusCode >= 400 {
		h.relayUpstreamError(w, upstreamResp.StatusCode, reader)
		return
	}

	if req.Stream {
		h.handleStreaming(w, reader, adapter, req.Model)
		return
	}

	h.handleNonStreaming(w, reader, adapter)
}

func estimateTokens(req messages.Request) int {
	var b strings.Builder
	for _, m := range req.Messages {
		for _, c := range m.Content {
			b.WriteString(c.Text)
		}
	}
	return router.CountInputTokens(b.String())
}

// resolveUpstream maps a routing selection to a registered adapter name
// plus the endpoint/credential pair it should talk to.
func (h *dispatchHandler) resolveUpstream(ctx context.Context, cfg *config.Config, sel router.Selection) (adapterName, endpoint, apiKey string, err error) {
	switch sel.Provider {
	case router.ProviderChatCompletions:
		endpoint = firstNonEmpty(cfg.OpenAIBaseURL, "https://api.openai.com/v1")
		return "openai", endpoint, cfg.OpenAIAPIKey, nil

	case router.ProviderOpenRouter:
		endpoint = firstNonEmpty(cfg.OpenRouterBaseURL, "https://openrouter.ai/api/v1")
		return "openrouter", endpoint, cfg.OpenRouterAPIKey, nil

	case router.ProviderGemini:
		if h.credsStore.Exists(creds.Account{Provider: "google", Slot: 0}) {
			tok, err := h.accessToken(ctx, "google")
			if err != nil {
				return "", "", "", err
			}
			endpoint = firstNonEmpty(cfg.GeminiBaseURL, "https://cloudcode-pa.googleapis.com/v1internal")
			return "gemini-workspace", endpoint, tok, nil
		}
		endpoint = firstNonEmpty(cfg.GeminiBaseURL, "https://generativelanguage.googleapis.com/v1beta")
		return "gemini", endpoint, cfg.GeminiAPIKey, nil

	case router.ProviderResponsesAPI:
		tok, err := h.accessToken(ctx, "codex")
		if err != nil {
			return "", "", "", err
		}
		return "codex-responses", "https://chatgpt.com/backend-api/codex", tok, nil

	case router.ProviderPassthroughAnthropic:
		endpoint = firstNonEmpty(cfg.AnthropicUpstreamURL, "https://api.anthropic.com/v1/messages")
		return "passthrough-anthropic", endpoint, cfg.AnthropicAPIKey, nil

	case router.ProviderPassthroughGLM:
		return "passthrough-glm", cfg.GLMUpstreamURL, cfg.ZAIAPIKey, nil
	}

	return "", "", "", fmt.Errorf("unroutable provider %q", sel.Provider)
}

// accessToken returns a valid access token for an OAuth-backed provider,
// refreshing it first if it's within 5 minutes of expiry, with per-account
// refreshes serialized so concurrent requests don't double-refresh.
func (h *dispatchHandler) accessToken(ctx context.Context, provider string) (string, error) {
	acc := h.credsStore.ActiveAccount(provider, false)

	lock := h.credsStore.RefreshLock(acc)
	lock.Lock()
	defer lock.Unlock()

	tok, err := h.credsStore.Load(acc)
	if err != nil && provider == "codex" {
		if home, homeErr := os.UserHomeDir(); homeErr == nil {
			if external, extErr := creds.LoadCodexExternal(home); extErr == nil {
				tok, err = external, nil
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("no %s credentials on file, run the login flow first: %w", provider, err)
	}

	if !tok.Expired() {
		return tok.AccessToken, nil
	}

	cfg := h.cfgMgr.Get()
	redirect := oauth.LoopbackRedirectURL(cfg.Port)

	var providerCfg oauth.ProviderConfig
	if provider == "google" {
		providerCfg = oauth.GeminiConfig(redirect, "")
	} else {
		providerCfg = oauth.CodexConfig(redirect)
	}

	refreshed, err := providerCfg.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh %s token: %w", provider, err)
	}

	if refreshed.Email == "" {
		refreshed.Email = tok.Email
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tok.RefreshToken
	}

	if err := h.credsStore.Save(acc, refreshed); err != nil {
		h.logger.Warn("failed to persist refreshed token", "provider", provider, "error", err)
	}

	return refreshed.AccessToken, nil
}

func (h *dispatchHandler) applyVisionFallback(ctx context.Context, req *messages.Request) {
	for i, m := range req.Messages {
		req.Messages[i].Content = h.vision.ReplaceImages(ctx, m.Content)
	}
}

func (h *dispatchHandler) handleNonStreaming(w http.ResponseWriter, reader io.Reader, adapter providers.Adapter) {
	body, err := io.ReadAll(reader)
	if err != nil {
		h.writeAPIError(w, http.StatusBadGateway, messages.ErrAPI, "reading upstream response: "+err.Error())
		return
	}

	resp, err := adapter.TranslateResponse(body)
	if err != nil {
		h.writeAPIError(w, http.StatusBadGateway, messages.ErrAPI, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *dispatchHandler) handleStreaming(w http.ResponseWriter, reader io.Reader, adapter providers.Adapter, model string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, canFlush := w.(http.Flusher)

	if _, ok := adapter.(*providers.Passthrough); ok {
		buf := make([]byte, 32*1024)
		for {
			n, err := reader.Read(buf)
			if n > 0 {
				_, _ = w.Write(buf[:n])
				if canFlush {
					flusher.Flush()
				}
			}
			if err != nil {
				return
			}
		}
	}

	streamState := sse.NewState(model)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		events, err := adapter.TranslateChunk([]byte(data), streamState)
		if err != nil {
			h.logger.Error("stream chunk translation failed", "error", err)
			continue
		}

		for _, ev := range events {
			_, _ = w.Write(ev)
		}

		if canFlush && len(events) > 0 {
			flusher.Flush()
		}
	}

	if err := scanner.Err(); err != nil {
		h.logger.Error("upstream stream read failed", "error", err)
		h.emitStreamError(w, streamState, adapter.Name(), err.Error(), canFlush, flusher)
	}
}

// emitStreamError surfaces an upstream failure that happened after
// message_start was already flushed: a synthetic text block embedding the
// error, then message_delta/message_stop, so the downstream never sees a
// truncated stream.
func (h *dispatchHandler) emitStreamError(w http.ResponseWriter, streamState *sse.State, provider, message string, canFlush bool, flusher http.Flusher) {
	if len(message) > 300 {
		message = message[:300]
	}

	events, err := streamState.EmitError(fmt.Sprintf("[%s Error] %s", provider, message))
	if err != nil {
		h.logger.Error("failed to emit synthetic stream error", "error", err)
		return
	}

	for _, ev := range events {
		_, _ = w.Write(ev)
	}
	if canFlush {
		flusher.Flush()
	}
}

func (h *dispatchHandler) relayUpstreamError(w http.ResponseWriter, status int, reader io.Reader) {
	body, _ := io.ReadAll(reader)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *dispatchHandler) writeAPIError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(messages.NewAPIError(errType, message))
}

func decompress(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		return gz, nil
	default:
		return resp.Body, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
