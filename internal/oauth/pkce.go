// Package oauth implements the PKCE authorization-code engine:
// verifier/challenge/state generation, a loopback callback flow, a
// per-account pending-flow table, and provider-specific token exchange
// and silent refresh, including Gemini's extra workspace-onboarding step.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const verifierByteLength = 32 // RFC 7636 requires at least 32 random bytes

// GenerateVerifier produces a cryptographically random PKCE code_verifier.
func GenerateVerifier() (string, error) {
	buf := make([]byte, verifierByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate PKCE verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ChallengeS256 derives the S256 code_challenge from a verifier.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateState produces an opaque anti-CSRF state token for the
// authorization redirect.
func GenerateState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
