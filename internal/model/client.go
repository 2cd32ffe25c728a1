package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	defaultCallTimeout    = 30 * time.Second
	defaultMaxConcurrent  = 4
	defaultMaxRetries     = 3
	initialBackoff        = 500 * time.Millisecond
)

// Message represents a chat message in the backend's API format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema describes the expected JSON output structure for structured responses.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Client talks to an Ollama-compatible inference backend over HTTP.
//
// All calls made through Client are read-only with respect to application
// state, so transient failures (network, rate limit) are retried with
// exponential backoff. Outbound concurrency is bounded by a semaphore to
// keep a burst of requests from exhausting connections to the backend,
// and every call carries a per-call timeout.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	creds       CredentialProvider
	sem         *semaphore.Weighted
	maxRetries  int
	callTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials sets the bearer credential provider.
func WithCredentials(cp CredentialProvider) Option {
	return func(c *Client) { c.creds = cp }
}

// WithMaxConcurrent bounds the number of in-flight backend calls.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithCallTimeout sets the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithMaxRetries sets the retry bound for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// NewClient creates a Client targeting the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // per-call contexts carry the timeout
		},
		creds:       StaticCredential(""),
		sem:         semaphore.NewWeighted(defaultMaxConcurrent),
		maxRetries:  defaultMaxRetries,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsRunning returns true if the backend responds to GET /api/tags with 200.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   any       `json:"format,omitempty"`
}

// chatResponse is the JSON returned by POST /api/chat (non-streaming).
type chatResponse struct {
	Message Message `json:"message"`
}

// Generate sends a single-prompt completion request and returns the
// assistant's text.
func (c *Client) Generate(ctx context.Context, modelName, prompt string) (string, error) {
	return c.Chat(ctx, modelName, []Message{{Role: "user", Content: prompt}}, nil)
}

// Chat sends messages to the given model and returns the assistant's
// response. When jsonSchema is non-nil, structured JSON output is requested.
func (c *Client) Chat(ctx context.Context, modelName string, messages []Message, jsonSchema *Schema) (string, error) {
	cr := chatRequest{
		Model:    modelName,
		Messages: messages,
		Stream:   false,
	}
	if jsonSchema != nil {
		cr.Format = jsonSchema
	}

	body, err := json.Marshal(cr)
	if err != nil {
		return "", err
	}

	var content string
	err = c.withRetry(ctx, func(callCtx context.Context) error {
		resp, callErr := c.post(callCtx, "/api/chat", body)
		if callErr != nil {
			return callErr
		}
		defer resp.Body.Close()

		var result chatResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&result); decErr != nil {
			return fmt.Errorf("decoding chat response: %w", decErr)
		}
		if result.Message.Content == "" {
			return &EmptyResponseError{Op: "chat"}
		}
		content = result.Message.Content
		return nil
	})
	return content, err
}

// embedRequest is the JSON body for POST /api/embed.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the JSON returned by POST /api/embed.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, modelName, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: modelName, Input: text})
	if err != nil {
		return nil, err
	}

	var vec []float32
	err = c.withRetry(ctx, func(callCtx context.Context) error {
		resp, callErr := c.post(callCtx, "/api/embed", body)
		if callErr != nil {
			return callErr
		}
		defer resp.Body.Close()

		var result embedResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&result); decErr != nil {
			return fmt.Errorf("decoding embed response: %w", decErr)
		}
		if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
			return &EmptyResponseError{Op: "embed"}
		}
		vec = result.Embeddings[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// withRetry runs fn under the concurrency gate, retrying transient
// failures with exponential backoff up to the configured bound.
func (c *Client) withRetry(ctx context.Context, fn func(context.Context) error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return &NetworkError{Err: err}
	}
	defer c.sem.Release(1)

	var lastErr error
	for attempt := range c.maxRetries {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}

		lastErr = err
		if attempt < c.maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return &NetworkError{Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", c.maxRetries, lastErr)
}

// post issues a single POST, translating HTTP-level failures into the
// typed error taxonomy. The caller owns the response body on success.
func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching credential: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, &AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, &QuotaError{Status: resp.StatusCode}
	default:
		resp.Body.Close()
		return nil, &NetworkError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}
