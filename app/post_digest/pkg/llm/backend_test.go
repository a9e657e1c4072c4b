package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIBackendComplete(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "demo-model",
			"choices": []any{
				map[string]any{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": "标题\n---\n摘要\n---\nTitle\n---\nSummary",
					},
				},
			},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	defer srv.Close()

	backend, err := NewOpenAIBackend(context.Background(), BackendConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Model:      "demo-model",
		MaxTokens:  256,
		HTTPClient: NewHTTPClient(5 * time.Second),
	})
	require.NoError(t, err)

	text, err := NewClient(backend).Generate(context.Background(), "Post", "Body")
	require.NoError(t, err)
	assert.Equal(t, "标题\n---\n摘要\n---\nTitle\n---\nSummary", text)

	assert.Equal(t, "demo-model", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, SystemInstruction, got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Contains(t, got.Messages[1].Content, "Body")
}

func TestOpenAIBackendRateLimitIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"rate_limit","code":"rate_limit"}}`))
	}))
	defer srv.Close()

	backend, err := NewOpenAIBackend(context.Background(), BackendConfig{
		BaseURL:    srv.URL,
		APIKey:     "k",
		Model:      "m",
		MaxTokens:  16,
		HTTPClient: NewHTTPClient(5 * time.Second),
	})
	require.NoError(t, err)

	s := &recordingSleeper{}
	_, err = NewClient(backend, WithSleeper(s.sleep)).Generate(context.Background(), "t", "c")

	var maxErr *MaxRetriesError
	require.True(t, errors.As(err, &maxErr), "got %v", err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.delays)
}

func TestGeminiBackendComplete(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []any{map[string]any{"text": "中文摘要\n---\nEnglish summary"}},
					},
					"finishReason": "STOP",
				},
			},
		})
	}))
	defer srv.Close()

	backend, err := NewGeminiBackend(context.Background(), BackendConfig{
		BaseURL:    srv.URL,
		APIKey:     "k",
		Model:      "gemini-2.0-flash",
		MaxTokens:  128,
		HTTPClient: NewHTTPClient(5 * time.Second),
	})
	require.NoError(t, err)

	text, err := NewClient(backend).Generate(context.Background(), "t", "c")
	require.NoError(t, err)
	assert.Equal(t, "中文摘要\n---\nEnglish summary", text)
	assert.True(t, strings.HasSuffix(path, "gemini-2.0-flash:generateContent"), path)
}

func TestGeminiBackendUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	backend, err := NewGeminiBackend(context.Background(), BackendConfig{
		BaseURL:    srv.URL,
		APIKey:     "bad",
		Model:      "gemini-2.0-flash",
		HTTPClient: NewHTTPClient(5 * time.Second),
	})
	require.NoError(t, err)

	_, err = NewClient(backend).Generate(context.Background(), "t", "c")

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream), "got %v", err)
	assert.Equal(t, http.StatusForbidden, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "API key not valid")
}
