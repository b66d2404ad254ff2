package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/claude-proxy/internal/messages"
)

func TestDescriber_Describe_MemoizesByContent(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "a red circle"}},
			},
		})
	}))
	defer server.Close()

	describer := NewDescriber(server.URL, "key", "vision-model")
	source := messages.ImageSource{Type: "base64", MediaType: "image/png", Data: "AAAA"}

	d1 := describer.Describe(context.Background(), source)
	d2 := describer.Describe(context.Background(), source)

	assert.Equal(t, "a red circle", d1)
	assert.Equal(t, d1, d2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second call for the same image must hit the cache, not the upstream")
}

func TestDescriber_Describe_FailureReturnsPlaceholder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	describer := NewDescriber(server.URL, "key", "vision-model")
	source := messages.ImageSource{Type: "base64", MediaType: "image/png", Data: "BBBB"}

	result := describer.Describe(context.Background(), source)
	assert.Equal(t, placeholderOnFailure, result)
}

func TestDescriber_ReplaceImages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "a dog"}},
			},
		})
	}))
	defer server.Close()

	describer := NewDescriber(server.URL, "key", "vision-model")

	blocks := []messages.ContentBlock{
		{Type: messages.BlockText, Text: "look at this"},
		{Type: messages.BlockImage, Source: &messages.ImageSource{Type: "base64", MediaType: "image/png", Data: "CCCC"}},
	}

	out := describer.ReplaceImages(context.Background(), blocks)
	require.Len(t, out, 2)
	assert.Equal(t, messages.BlockText, out[0].Type)
	assert.Equal(t, messages.BlockText, out[1].Type)
	assert.Contains(t, out[1].Text, "a dog")
}
