package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/Davincible/claude-proxy/internal/creds"
)

// ProviderConfig carries the per-provider OAuth endpoint shape. Codex
// exchanges tokens as a public client over form-urlencoded POSTs with no
// client secret; Gemini's workspace OAuth client is confidential and
// expects a JSON body with its secret included.
type ProviderConfig struct {
	Name           string
	AuthURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	Scopes         []string
	JSONTokenBody  bool // Gemini: JSON + secret. Codex: form + no secret.
}

// oauth2Config builds the golang.org/x/oauth2 config used for auth URL
// assembly; the code exchange and the refresh-token grant are both driven
// directly (buildTokenRequest/doTokenRequest) since x/oauth2 doesn't model
// PKCE confidential-client exchange on its own.
func (p ProviderConfig) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// AuthorizationURL builds the browser-facing login URL for one pending
// flow, including the PKCE challenge and state.
func (p ProviderConfig) AuthorizationURL(flow PendingFlow) string {
	cfg := p.oauth2Config()
	return cfg.AuthCodeURL(flow.State,
		oauth2.SetAuthURLParam("code_challenge", ChallengeS256(flow.Verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// tokenResponse is the shape every provider in this pack returns from its
// token endpoint, modulo field presence.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// Exchange trades an authorization code plus its PKCE verifier for an
// access/refresh token pair.
func (p ProviderConfig) Exchange(ctx context.Context, code, verifier string) (*creds.OAuthToken, error) {
	req, err := p.buildTokenRequest(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {p.RedirectURL},
		"client_id":     {p.ClientID},
		"code_verifier": {verifier},
	})
	if err != nil {
		return nil, err
	}

	return p.doTokenRequest(req)
}

// Refresh trades a refresh token for a fresh access token.
func (p ProviderConfig) Refresh(ctx context.Context, refreshToken string) (*creds.OAuthToken, error) {
	req, err := p.buildTokenRequest(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {p.ClientID},
	})
	if err != nil {
		return nil, err
	}

	return p.doTokenRequest(req)
}

func (p ProviderConfig) buildTokenRequest(ctx context.Context, form url.Values) (*http.Request, error) {
	if p.JSONTokenBody {
		form.Set("client_secret", p.ClientSecret)

		body := map[string]string{}
		for k := range form {
			body[k] = form.Get(k)
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s token request: %w", p.Name, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build %s token request: %w", p.Name, err)
		}
		req.Header.Set("Content-Type", "application/json")

		return req, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return nil, fmt.Errorf("build %s token request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return req, nil
}

func (p ProviderConfig) doTokenRequest(req *http.Request) (*creds.OAuthToken, error) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s token request: %w", p.Name, err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode %s token response: %w", p.Name, err)
	}

	if resp.StatusCode != http.StatusOK || tr.Error != "" {
		return nil, fmt.Errorf("%s token request failed (status %d): %s %s", p.Name, resp.StatusCode, tr.Error, tr.ErrorDesc)
	}

	tok := &creds.OAuthToken{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}

	if tr.IDToken != "" {
		if claims, err := creds.DecodeClaims(tr.IDToken); err == nil {
			tok.Email = claims.Email
			tok.AccountID = claims.AccountID
		}
	}

	return tok, nil
}

// FormatExpiresIn is a small helper for status/debug output.
func FormatExpiresIn(expiresAt time.Time) string {
	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		return "expired"
	}
	return strconv.Itoa(int(remaining.Seconds())) + "s"
}
