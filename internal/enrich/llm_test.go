package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"loadsignal.dev/collector/internal/config"
)

func testLLMClient(baseURL string, dims int) *LLMClient {
	return NewLLMClient(&config.Config{
		LLMBaseURL:          baseURL,
		LLMModel:            "test-model",
		LLMAPIKey:           "test-key",
		EmbeddingModel:      "test-embedding",
		EmbeddingDimensions: dims,
	})
}

func TestChatReturnsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"ok":true}`}},
			},
		})
	}))
	defer server.Close()

	client := testLLMClient(server.URL, 4)
	content, err := client.Chat(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("content = %q", content)
	}
}

func TestChatRetriesOnceOnServerError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "recovered"}},
			},
		})
	}))
	defer server.Close()

	client := testLLMClient(server.URL, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	content, err := client.Chat(ctx, "s", "u")
	if err != nil {
		t.Fatalf("Chat after retry: %v", err)
	}
	if content != "recovered" || calls.Load() != 2 {
		t.Fatalf("content=%q calls=%d", content, calls.Load())
	}
}

func TestChatDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testLLMClient(server.URL, 4)
	if _, err := client.Chat(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 (401 is not transient)", calls.Load())
	}
}

func TestEmbedChecksDimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float64{0.1, 0.2, 0.3}},
			},
		})
	}))
	defer server.Close()

	client := testLLMClient(server.URL, 3)
	vector, err := client.Embed(context.Background(), "query")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vector) != 3 {
		t.Fatalf("len = %d", len(vector))
	}

	mismatched := testLLMClient(server.URL, 1024)
	if _, err := mismatched.Embed(context.Background(), "query"); err == nil {
		t.Fatal("dimension mismatch accepted")
	}
}

func TestIsTransient(t *testing.T) {
	if !isTransient(&httpStatusError{status: 429}) {
		t.Fatal("429 is transient")
	}
	if !isTransient(&httpStatusError{status: 502}) {
		t.Fatal("502 is transient")
	}
	if isTransient(&httpStatusError{status: 400}) {
		t.Fatal("400 is not transient")
	}
}
