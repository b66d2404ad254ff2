package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// geminiCloudCodeBase is the Code Assist backend Gemini's workspace OAuth
// flow must onboard a project against before any generateContent call
// will succeed for a workspace account.
const geminiCloudCodeBase = "https://cloudcode-pa.googleapis.com/v1internal"

// tierPriority is the onboarding fallback order: paid tiers first, then
// whatever the account already has, then the standard tier, then the free
// tier, then simply the first tier the backend offers.
var tierPriority = []string{"paid", "current", "standard", "free"}

// EnsureWorkspaceOnboarded runs Gemini's loadCodeAssist / onboardUser
// long-running-operation handshake, required once per workspace account
// before the Cloud Code backend accepts generateContent requests from it.
func EnsureWorkspaceOnboarded(ctx context.Context, accessToken string) (projectID string, err error) {
	load, err := loadCodeAssist(ctx, accessToken)
	if err != nil {
		return "", err
	}

	if load.CloudaicompanionProject != "" {
		return load.CloudaicompanionProject, nil
	}

	tier := pickTier(load.AllowedTiers)

	return onboardUser(ctx, accessToken, tier)
}

type loadCodeAssistResponse struct {
	CloudaicompanionProject string   `json:"cloudaicompanionProject"`
	AllowedTiers            []string `json:"allowedTiers"`
}

func loadCodeAssist(ctx context.Context, accessToken string) (*loadCodeAssistResponse, error) {
	resp, err := doGeminiInternal(ctx, accessToken, "loadCodeAssist", map[string]any{
		"metadata": map[string]any{"pluginType": "GEMINI"},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out loadCodeAssistResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode loadCodeAssist response: %w", err)
	}

	return &out, nil
}

// onboardUser calls onboardUser and polls the returned long-running
// operation until it completes, returning the provisioned project id.
func onboardUser(ctx context.Context, accessToken, tier string) (string, error) {
	resp, err := doGeminiInternal(ctx, accessToken, "onboardUser", map[string]any{
		"tierId":   tier,
		"metadata": map[string]any{"pluginType": "GEMINI"},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var op struct {
		Name string `json:"name"`
		Done bool   `json:"done"`
		Response struct {
			CloudaicompanionProject struct {
				ID string `json:"id"`
			} `json:"cloudaicompanionProject"`
		} `json:"response"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return "", fmt.Errorf("decode onboardUser response: %w", err)
	}

	deadline := time.Now().Add(2 * time.Minute)
	for !op.Done && time.Now().Before(deadline) {
		time.Sleep(2 * time.Second)

		pollResp, err := doGeminiInternal(ctx, accessToken, "operations/"+op.Name, nil)
		if err != nil {
			return "", err
		}

		err = json.NewDecoder(pollResp.Body).Decode(&op)
		pollResp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("decode onboarding operation poll: %w", err)
		}
	}

	if !op.Done {
		return "", fmt.Errorf("gemini workspace onboarding did not complete in time")
	}

	if op.Response.CloudaicompanionProject.ID == "" {
		return "", fmt.Errorf("gemini workspace onboarding completed without a project id")
	}

	return op.Response.CloudaicompanionProject.ID, nil
}

func pickTier(allowed []string) string {
	for _, candidate := range tierPriority {
		for _, a := range allowed {
			if strings.EqualFold(a, candidate) {
				return a
			}
		}
	}
	if len(allowed) > 0 {
		return allowed[0]
	}
	return "free"
}

func doGeminiInternal(ctx context.Context, accessToken, method string, body any) (*http.Response, error) {
	var reqBody []byte

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", method, err)
		}
		reqBody = encoded
	}

	httpMethod := http.MethodPost
	if body == nil {
		httpMethod = http.MethodGet
	}

	var bodyReader io.Reader = http.NoBody
	if reqBody != nil {
		bodyReader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, geminiCloudCodeBase+"/"+method, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}

	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s failed with status %d", method, resp.StatusCode)
	}

	return resp, nil
}
