package oauth

import "strconv"

// These client identifiers and endpoints match the public OAuth clients
// the respective CLIs (Codex, gcloud/Gemini CLI) embed in their own
// open-source source trees; there is no secret-management concern here
// beyond each provider's own content-type/secret requirements.

const loopbackRedirectPort = 1455

func CodexConfig(redirectURL string) ProviderConfig {
	return ProviderConfig{
		Name:          "codex",
		AuthURL:       "https://auth.openai.com/oauth/authorize",
		TokenURL:      "https://auth.openai.com/oauth/token",
		ClientID:      "app_EMoamEEZ73f0CkXaXp7hrann",
		RedirectURL:   redirectURL,
		Scopes:        []string{"openid", "profile", "email", "offline_access"},
		JSONTokenBody: false,
	}
}

func GeminiConfig(redirectURL, clientSecret string) ProviderConfig {
	return ProviderConfig{
		Name:          "google",
		AuthURL:       "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:      "https://oauth2.googleapis.com/token",
		ClientID:      "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com",
		ClientSecret:  clientSecret,
		RedirectURL:   redirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/cloud-platform",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		JSONTokenBody: true,
	}
}

// LoopbackRedirectURL builds the http://localhost:PORT/callback URL this
// gateway listens on during a login flow.
func LoopbackRedirectURL(port int) string {
	if port == 0 {
		port = loopbackRedirectPort
	}
	return "http://localhost:" + strconv.Itoa(port) + "/oauth/callback"
}
