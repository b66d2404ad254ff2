package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Davincible/claude-proxy/internal/config"
	"github.com/Davincible/claude-proxy/internal/creds"
	"github.com/Davincible/claude-proxy/internal/oauth"
)

// oauthHandler serves the login-redirect and callback endpoints for the
// two OAuth-backed upstreams (Gemini workspace, Codex). A request to
// /google/login or /codex/login starts a PKCE flow and redirects the
// browser to the provider's consent screen; the matching /callback
// endpoint completes it and persists the resulting token.
type oauthHandler struct {
	pending    *oauth.PendingTable
	credsStore *creds.Store
	cfgMgr     *config.Manager
	logger     *slog.Logger
}

func (h *oauthHandler) googleLogin(w http.ResponseWriter, r *http.Request) {
	h.startLogin(w, r, "google")
}

func (h *oauthHandler) codexLogin(w http.ResponseWriter, r *http.Request) {
	h.startLogin(w, r, "codex")
}

func (h *oauthHandler) startLogin(w http.ResponseWriter, r *http.Request, provider string) {
	slot := 0
	if r.URL.Query().Get("secondary") == "1" {
		slot = 1
	}

	flow, err := h.pending.Start(provider, slot)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	cfg := h.providerConfig(provider, r)
	authURL := cfg.AuthorizationURL(flow)

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *oauthHandler) googleCallback(w http.ResponseWriter, r *http.Request) {
	h.completeLogin(w, r, "google")
}

func (h *oauthHandler) codexCallback(w http.ResponseWriter, r *http.Request) {
	h.completeLogin(w, r, "codex")
}

func (h *oauthHandler) completeLogin(w http.ResponseWriter, r *http.Request, provider string) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")

	if code == "" || state == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("missing code or state"))
		return
	}

	flow, err := h.pending.Complete(state)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg := h.providerConfig(provider, r)

	tok, err := cfg.Exchange(r.Context(), code, flow.Verifier)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err)
		return
	}

	if provider == "google" {
		projectID, err := oauth.EnsureWorkspaceOnboarded(r.Context(), tok.AccessToken)
		if err != nil {
			h.logger.Warn("gemini workspace onboarding failed", "error", err)
		} else {
			tok.AccountID = projectID
		}
	}

	acc := creds.Account{Provider: provider, Slot: flow.Slot}
	if err := h.credsStore.Save(acc, tok); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"email":  tok.Email,
		"slot":   flow.Slot,
	})
}

func (h *oauthHandler) providerConfig(provider string, r *http.Request) oauth.ProviderConfig {
	cfg := h.cfgMgr.Get()
	redirect := oauth.LoopbackRedirectURL(cfg.Port)

	if provider == "google" {
		return oauth.GeminiConfig(redirect, "")
	}
	return oauth.CodexConfig(redirect)
}

func (h *oauthHandler) writeError(w http.ResponseWriter, status int, err error) {
	h.logger.Error("oauth flow failed", "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
