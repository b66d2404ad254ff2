package gateway

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/claude-proxy/internal/providers"
)

// failingReader yields one valid SSE line, then fails every subsequent read,
// simulating an upstream connection that dies mid-stream.
type failingReader struct {
	data []byte
	sent bool
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		n := copy(p, r.data)
		return n, nil
	}
	return 0, r.err
}

func TestHandleStreaming_MidStreamUpstreamFailure_EmitsSyntheticErrorAndTerminates(t *testing.T) {
	handler := &dispatchHandler{logger: slog.Default()}
	adapter := providers.NewChatCompletions("openai")

	reader := &failingReader{
		data: []byte("data: {\"id\":\"1\",\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n"),
		err:  upstreamDiedError{},
	}

	rec := httptest.NewRecorder()
	handler.handleStreaming(rec, reader, adapter, "gpt-5")

	body := rec.Body.String()
	require.NotEmpty(t, body)
	assert.Contains(t, body, "content_block_start")
	assert.Contains(t, body, "content_block_stop")
	assert.Contains(t, body, "openai Error")
	assert.Contains(t, body, "message_delta")
	assert.Contains(t, body, "message_stop")
}

type upstreamDiedError struct{}

func (upstreamDiedError) Error() string { return "connection reset by peer" }
