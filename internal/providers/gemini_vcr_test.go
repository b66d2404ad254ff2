package providers

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"
)

// TestGemini_TranslateResponse_RecordedSession replays a recorded
// generateContent exchange instead of hitting the live API, so the
// response-translation path can be exercised against a realistic payload
// without a network call.
func TestGemini_TranslateResponse_RecordedSession(t *testing.T) {
	rec, err := recorder.New("testdata/gemini_generate")
	require.NoError(t, err)
	defer rec.Stop()

	client := &http.Client{Transport: rec}

	resp, err := client.Post(
		"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent?key=test-key",
		"application/json",
		strings.NewReader("{}"),
	)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	adapter := NewGeminiAPIKey()
	out, err := adapter.TranslateResponse(body)
	require.NoError(t, err)

	require.Len(t, out.Content, 1)
	assert.Equal(t, "Paris is the capital of France.", out.Content[0].Text)
	assert.Equal(t, 8, out.Usage.InputTokens)
	assert.Equal(t, 7, out.Usage.OutputTokens)
}
