package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loadsignal.dev/collector/internal/collecterr"
	"loadsignal.dev/collector/internal/config"
)

const (
	chatTimeout      = 90 * time.Second
	embeddingTimeout = 30 * time.Second
	transientBackoff = 2 * time.Second
)

// LLMClient talks to an OpenAI-compatible chat-completions and embeddings
// endpoint.
type LLMClient struct {
	baseURL        string
	model          string
	apiKey         string
	temperature    float64
	maxTokens      int
	embeddingModel string
	embeddingDims  int
	http           *http.Client
}

func NewLLMClient(cfg *config.Config) *LLMClient {
	return &LLMClient{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.LLMBaseURL), "/"),
		model:          cfg.LLMModel,
		apiKey:         cfg.LLMAPIKey,
		temperature:    cfg.LLMTemperature,
		maxTokens:      cfg.LLMMaxTokens,
		embeddingModel: cfg.EmbeddingModel,
		embeddingDims:  cfg.EmbeddingDimensions,
		http:           &http.Client{},
	}
}

// EmbeddingDimensions reports the configured output dimensionality.
func (c *LLMClient) EmbeddingDimensions() int {
	return c.embeddingDims
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends one completion request and returns the assistant content.
// Transient failures (transport errors, 429, 5xx) get exactly one retry
// after a short backoff.
func (c *LLMClient) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	var response chatResponse
	if err := c.postWithRetry(ctx, "/chat/completions", chatTimeout, payload, &response); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", collecterr.Wrapf(collecterr.KindValidation, "chat response has no choices")
	}
	return response.Choices[0].Message.Content, nil
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text, verified against the
// configured dimensionality.
func (c *LLMClient) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := embeddingRequest{
		Model:      c.embeddingModel,
		Input:      text,
		Dimensions: c.embeddingDims,
	}

	var response embeddingResponse
	if err := c.postWithRetry(ctx, "/embeddings", embeddingTimeout, payload, &response); err != nil {
		return nil, err
	}
	if len(response.Data) == 0 {
		return nil, collecterr.Wrapf(collecterr.KindValidation, "embedding response has no data")
	}
	vector := response.Data[0].Embedding
	if len(vector) != c.embeddingDims {
		return nil, collecterr.Wrapf(collecterr.KindValidation, "embedding dimension %d, want %d", len(vector), c.embeddingDims)
	}
	return vector, nil
}

func (c *LLMClient) postWithRetry(ctx context.Context, path string, timeout time.Duration, payload, out any) error {
	err := c.post(ctx, path, timeout, payload, out)
	if err == nil || !isTransient(err) {
		return err
	}

	select {
	case <-ctx.Done():
		return collecterr.Wrap(collecterr.KindNetwork, ctx.Err())
	case <-time.After(transientBackoff):
	}
	return c.post(ctx, path, timeout, payload, out)
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm endpoint returned %d: %s", e.status, e.body)
}

func isTransient(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}
	return collecterr.IsNetwork(err)
}

func (c *LLMClient) post(ctx context.Context, path string, timeout time.Duration, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return collecterr.Wrap(collecterr.KindNetwork, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return collecterr.Wrap(collecterr.KindNetwork, fmt.Errorf("post %s: %w", path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return collecterr.Wrap(collecterr.KindNetwork, &httpStatusError{
			status: resp.StatusCode,
			body:   strings.TrimSpace(string(snippet)),
		})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return collecterr.Wrap(collecterr.KindParse, fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}
