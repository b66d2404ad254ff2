package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/claude-proxy/internal/router"
	"github.com/Davincible/claude-proxy/internal/state"
)

func TestHealthHandler_OK(t *testing.T) {
	h := &healthHandler{startedAt: time.Now(), active: state.NewActiveSelection()}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Greater(t, resp.PID, 0)
}

func TestHealthHandler_StatusIncludesActiveSelection(t *testing.T) {
	active := state.NewActiveSelection()
	active.Set(router.Selection{Provider: router.ProviderOpenRouter, Model: "qwen3-coder"})

	h := &healthHandler{startedAt: time.Now(), active: active}

	req := httptest.NewRequest(http.MethodGet, "/_status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "openrouter", resp.ActiveProvider)
	assert.Equal(t, "qwen3-coder", resp.ActiveModel)
}
