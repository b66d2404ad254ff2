// Package vision implements the vision-preprocessing fallback: when the
// active provider selection can't accept image content blocks itself,
// inline images are described by a vision-capable model instead and
// replaced with that description as text, memoized by image content so
// an image already described in this process is served from the cache and
// identical images within one message are described once.
package vision

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/Davincible/claude-proxy/internal/messages"
)

const placeholderOnFailure = "[image could not be described]"

// Describer calls an upstream vision-capable chat completion to turn one
// image into a text description.
type Describer struct {
	endpoint string
	apiKey   string
	model    string

	mu    sync.Mutex
	cache map[string]string
}

func NewDescriber(endpoint, apiKey, model string) *Describer {
	return &Describer{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		cache:    map[string]string{},
	}
}

// Describe returns a cached description for the given inline image if one
// exists, or fetches and caches a new one. On any upstream failure it
// returns the fixed placeholder rather than propagating an error, since a
// failed description must never abort the whole request.
func (d *Describer) Describe(ctx context.Context, source messages.ImageSource) string {
	key := imageKey(source)

	d.mu.Lock()
	if cached, ok := d.cache[key]; ok {
		d.mu.Unlock()
		return cached
	}
	d.mu.Unlock()

	description, err := d.describeUpstream(ctx, source)
	if err != nil {
		description = placeholderOnFailure
	}

	d.mu.Lock()
	d.cache[key] = description
	d.mu.Unlock()

	return description
}

func imageKey(source messages.ImageSource) string {
	sum := sha256.New()
	sum.Write([]byte(source.MediaType))
	sum.Write([]byte(source.Data))
	sum.Write([]byte(source.URL))
	return hex.EncodeToString(sum.Sum(nil))
}

type visionChatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content []any  `json:"content"`
	} `json:"messages"`
	MaxTokens int `json:"max_tokens"`
}

type visionChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (d *Describer) describeUpstream(ctx context.Context, source messages.ImageSource) (string, error) {
	imageURL := source.URL
	if imageURL == "" && source.Data != "" {
		imageURL = "data:" + source.MediaType + ";base64," + source.Data
	}

	req := visionChatRequest{Model: d.model, MaxTokens: 256}
	req.Messages = append(req.Messages, struct {
		Role    string `json:"role"`
		Content []any  `json:"content"`
	}{
		Role: "user",
		Content: []any{
			map[string]any{"type": "text", "text": "Describe this image concisely for a text-only reader."},
			map[string]any{"type": "image_url", "image_url": map[string]string{"url": imageURL}},
		},
	})

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal vision request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build vision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("vision request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision upstream returned status %d", resp.StatusCode)
	}

	var out visionChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode vision response: %w", err)
	}

	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("vision upstream returned no description")
	}

	return out.Choices[0].Message.Content, nil
}

// ReplaceImages walks a message's content blocks and replaces every image
// block with a text block carrying its description, fanning the
// descriptions for one message out concurrently, one per distinct image.
func (d *Describer) ReplaceImages(ctx context.Context, blocks []messages.ContentBlock) []messages.ContentBlock {
	type job struct {
		index  int
		source messages.ImageSource
	}

	var jobs []job
	for i, b := range blocks {
		if b.Type == messages.BlockImage && b.Source != nil {
			jobs = append(jobs, job{index: i, source: *b.Source})
		}
	}

	if len(jobs) == 0 {
		return blocks
	}

	keys := make([]string, len(jobs))
	first := map[string]int{} // image key -> first job carrying that image
	for i, j := range jobs {
		keys[i] = imageKey(j.source)
		if _, ok := first[keys[i]]; !ok {
			first[keys[i]] = i
		}
	}

	descriptions := make([]string, len(jobs))
	var wg sync.WaitGroup
	for _, i := range first {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			descriptions[i] = d.Describe(ctx, j.source)
		}(i, jobs[i])
	}
	wg.Wait()

	out := make([]messages.ContentBlock, len(blocks))
	copy(out, blocks)

	for i, j := range jobs {
		out[j.index] = messages.ContentBlock{Type: messages.BlockText, Text: "[image] " + descriptions[first[keys[i]]]}
	}

	return out
}
