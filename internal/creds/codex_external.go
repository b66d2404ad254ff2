package creds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// codexExternalAuth mirrors the shape Codex CLI itself writes to
// ~/.codex/auth.json, so a user who already authenticated through the
// official CLI doesn't have to run this gateway's own OAuth flow again.
type codexExternalAuth struct {
	Tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		AccountID    string `json:"account_id"`
	} `json:"tokens"`
}

// LoadCodexExternal reads Codex CLI's own auth.json as a read-only
// fallback source when this gateway has no token of its own yet.
func LoadCodexExternal(homeDir string) (*OAuthToken, error) {
	path := filepath.Join(homeDir, ".codex", "auth.json")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read external codex auth: %w", err)
	}

	var external codexExternalAuth
	if err := json.Unmarshal(data, &external); err != nil {
		return nil, fmt.Errorf("parse external codex auth: %w", err)
	}

	if external.Tokens.AccessToken == "" {
		return nil, fmt.Errorf("external codex auth has no access token")
	}

	tok := &OAuthToken{
		AccessToken:  external.Tokens.AccessToken,
		RefreshToken: external.Tokens.RefreshToken,
		AccountID:    external.Tokens.AccountID,
	}

	if claims, err := DecodeClaims(external.Tokens.IDToken); err == nil {
		tok.Email = claims.Email
		tok.ExpiresAt = claims.ExpiresAt()
	}

	return tok, nil
}
