package creds

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Claims is the subset of a JWT's payload this gateway cares about. It is
// decoded for informational purposes only (populating email/account id
// and expiry in an OAuthToken record) — the signature is never verified, since the
// token itself is only ever used bearer-style against the provider that
// issued it.
type Claims struct {
	Email     string `json:"email"`
	Plan      string `json:"plan,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Expiry    int64  `json:"exp"`
}

func (c Claims) ExpiresAt() time.Time {
	if c.Expiry == 0 {
		return time.Time{}
	}
	return time.Unix(c.Expiry, 0)
}

// DecodeClaims base64url-decodes the middle segment of a JWT without
// checking its signature.
func DecodeClaims(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("not a JWT: expected 3 dot-separated segments, got %d", len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("decode JWT payload: %w", err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("parse JWT claims: %w", err)
	}

	return claims, nil
}
