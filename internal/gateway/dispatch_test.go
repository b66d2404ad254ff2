package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/claude-proxy/internal/config"
	"github.com/Davincible/claude-proxy/internal/creds"
	"github.com/Davincible/claude-proxy/internal/providers"
	"github.com/Davincible/claude-proxy/internal/state"
	"github.com/Davincible/claude-proxy/internal/vision"
)

func newTestDispatcher(t *testing.T, upstreamURL string) *dispatchHandler {
	t.Helper()

	baseDir := t.TempDir()
	mgr := config.NewManager(baseDir)
	require.NoError(t, mgr.Set("GLM_UPSTREAM_URL", upstreamURL))
	require.NoError(t, mgr.Set("ZAI_API_KEY", "test-key"))
	_, err := mgr.Load()
	require.NoError(t, err)

	registry := providers.NewRegistry()
	registry.Register(providers.NewPassthrough("passthrough-glm", "2023-06-01"))

	return &dispatchHandler{
		cfgMgr:     mgr,
		logger:     slog.Default(),
		registry:   registry,
		credsStore: creds.NewStore(baseDir),
		active:     state.NewActiveSelection(),
		vision:     vision.NewDescriber("", "", ""),
	}
}

func TestDispatch_PassthroughGLM_NonStreaming(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "msg_1", "type": "message", "role": "assistant",
			"content": []map[string]string{{"type": "text", "text": "hi"}},
			"usage":   map[string]int{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer upstream.Close()

	handler := newTestDispatcher(t, upstream.URL)

	reqBody := `{"model":"glm-4.6","max_tokens":100,"messages":[{"role":"user","content":[{"type":"text","text":"hello"}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(reqBody))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hi"`)
}

func TestDispatch_RejectsNonPost(t *testing.T) {
	handler := newTestDispatcher(t, "http://unused")

	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDispatch_AliasFromConfigRoutesThroughGateway(t *testing.T) {
	var gotModel string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		_ = json.Unmarshal(body, &decoded)
		gotModel, _ = decoded["model"].(string)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "msg_1", "type": "message", "role": "assistant",
			"content": []map[string]string{{"type": "text", "text": "hi"}},
			"usage":   map[string]int{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer upstream.Close()

	baseDir := t.TempDir()
	mgr := config.NewManager(baseDir)
	require.NoError(t, mgr.Set("GLM_UPSTREAM_URL", upstream.URL))
	require.NoError(t, mgr.Set("ZAI_API_KEY", "test-key"))
	require.NoError(t, mgr.Set("ROUTER_ALIASES", "fast=glm-4.6-flash"))
	_, err := mgr.Load()
	require.NoError(t, err)

	registry := providers.NewRegistry()
	registry.Register(providers.NewPassthrough("passthrough-glm", "2023-06-01"))

	handler := &dispatchHandler{
		cfgMgr:     mgr,
		logger:     slog.Default(),
		registry:   registry,
		credsStore: creds.NewStore(baseDir),
		active:     state.NewActiveSelection(),
		vision:     vision.NewDescriber("", "", ""),
	}

	reqBody := `{"model":"fast","max_tokens":100,"messages":[{"role":"user","content":[{"type":"text","text":"hello"}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(reqBody))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "glm-4.6-flash", gotModel)
}

func TestDispatch_MalformedBody(t *testing.T) {
	handler := newTestDispatcher(t, "http://unused")

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader("not json"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
