/**
 * Embedding Client for clark
 *
 * Generates VoyageAI voyage-3 embeddings (1024 dimensions) for the vector sink.
 * Documents are embedded per page so search hits point at a page, not a file.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ArmanBehnam/clark/internal/logging"
)

const (
	// EmbeddingDimensions is the vector size of voyage-3.
	EmbeddingDimensions = 1024

	defaultVoyageURL   = "https://api.voyageai.com/v1/embeddings"
	defaultVoyageModel = "voyage-3"
	maxEmbedChars      = 16000
	voyageBatchSize    = 100
)

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingClient handles VoyageAI embedding generation.
type EmbeddingClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
	logger     *logging.Logger
}

// EmbeddingOption customizes an EmbeddingClient.
type EmbeddingOption func(*EmbeddingClient)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) EmbeddingOption {
	return func(c *EmbeddingClient) { c.baseURL = url }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) EmbeddingOption {
	return func(c *EmbeddingClient) { c.httpClient = hc }
}

// WithAttempts sets how often a throttled or failed request is tried.
func WithAttempts(n uint) EmbeddingOption {
	return func(c *EmbeddingClient) { c.attempts = max(n, 1) }
}

type voyageRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// statusError is a non-200 answer from the embedding API.
type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("VoyageAI API returned status %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// NewEmbeddingClient creates a new embedding client.
func NewEmbeddingClient(apiKey string, opts ...EmbeddingOption) (*EmbeddingClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("VoyageAI API key is required")
	}
	c := &EmbeddingClient{
		apiKey:     apiKey,
		baseURL:    defaultVoyageURL,
		model:      defaultVoyageModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   3,
		delay:      500 * time.Millisecond,
		logger:     logging.NewLogger("Embedding"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Embed returns one vector per text, in input order. Texts are sent in chunks
// of 100, the API limit.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += voyageBatchSize {
		end := min(i+voyageBatchSize, len(texts))
		vecs, err := c.embedChunk(ctx, texts[i:end], "document")
		if err != nil {
			return nil, fmt.Errorf("embed texts %d-%d: %w", i, end-1, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery embeds a search query.
func (c *EmbeddingClient) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	vecs, err := c.embedChunk(ctx, []string{query}, "query")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *EmbeddingClient) embedChunk(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, t := range texts {
		if len(t) > maxEmbedChars {
			c.logger.Warn("Text too long, truncating", "index", i, "chars", len(t), "limit", maxEmbedChars)
			t = t[:maxEmbedChars]
		}
		input[i] = t
	}
	body, err := json.Marshal(voyageRequest{Input: input, Model: c.model, InputType: inputType})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp *voyageResponse
	err = retry.Do(
		func() error {
			r, err := c.post(ctx, body)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			se, ok := err.(*statusError)
			return !ok || se.retryable()
		}),
		retry.DelayType(func(n uint, err error, cfg *retry.Config) time.Duration {
			if se, ok := err.(*statusError); ok && se.retryAfter > 0 {
				return se.retryAfter
			}
			return retry.BackOffDelay(n, err, cfg)
		}),
		retry.Delay(c.delay),
	)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(resp.Data), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("invalid embedding index: %d", d.Index)
		}
		if len(d.Embedding) != EmbeddingDimensions {
			return nil, fmt.Errorf("unexpected embedding dimensions for text %d: got %d, expected %d", d.Index, len(d.Embedding), EmbeddingDimensions)
		}
		vecs[d.Index] = d.Embedding
	}
	c.logger.Debug("Embeddings generated", "texts", len(texts), "tokens", resp.Usage.TotalTokens)
	return vecs, nil
}

func (c *EmbeddingClient) post(ctx context.Context, body []byte) (*voyageResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		se := &statusError{code: resp.StatusCode, body: truncate(string(data), 200)}
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			se.retryAfter = time.Duration(s) * time.Second
		}
		return nil, se
	}

	var out voyageResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
