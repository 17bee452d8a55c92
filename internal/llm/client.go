// Package llm is the HTTP client for the upstream LLM gateway.
//
// The gateway exposes one endpoint per model: POST {base}/{model} with a
// JSON payload and a bearer token. Transport failures and 5xx responses are
// retried with a fixed delay; 4xx responses are terminal.
package llm

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

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultTimeout bounds a single model invocation. Generation can be
	// slow, so the default is deliberately generous.
	DefaultTimeout = 600 * time.Second
	// DefaultRetries is the total number of attempts per invocation.
	DefaultRetries = 3
	// DefaultRetryDelay is the fixed wait between attempts.
	DefaultRetryDelay = 2 * time.Second
	// DefaultHealthCheckTimeout bounds the connectivity probe.
	DefaultHealthCheckTimeout = 3 * time.Second
)

// Config configures the gateway client.
type Config struct {
	BaseURL            string
	Token              string
	Timeout            time.Duration
	Retries            int
	RetryDelay         time.Duration
	HealthCheckTimeout time.Duration
	HTTPClient         *http.Client
}

// Client invokes models on the LLM gateway.
type Client struct {
	baseURL            string
	token              string
	timeout            time.Duration
	retries            int
	retryDelay         time.Duration
	healthCheckTimeout time.Duration
	httpClient         *http.Client
	cache              *Cache
}

// StatusError reports a non-2xx gateway response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm gateway returned status %d: %s", e.StatusCode, e.Body)
}

// New creates a gateway client. Base URL and token are required; the
// remaining fields default to the package constants when zero.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("llm api base url is required")
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("llm api token is required")
	}

	client := &Client{
		baseURL:            strings.TrimRight(baseURL, "/"),
		token:              token,
		timeout:            cfg.Timeout,
		retries:            cfg.Retries,
		retryDelay:         cfg.RetryDelay,
		healthCheckTimeout: cfg.HealthCheckTimeout,
		httpClient:         cfg.HTTPClient,
	}
	if client.timeout <= 0 {
		client.timeout = DefaultTimeout
	}
	if client.retries <= 0 {
		client.retries = DefaultRetries
	}
	if client.retryDelay <= 0 {
		client.retryDelay = DefaultRetryDelay
	}
	if client.healthCheckTimeout <= 0 {
		client.healthCheckTimeout = DefaultHealthCheckTimeout
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}
	return client, nil
}

// WithCache attaches a response cache consulted before the gateway.
func (c *Client) WithCache(cache *Cache) *Client {
	c.cache = cache
	return c
}

// Invoke posts payload to the named model and returns the decoded JSON
// response. Retries follow the configured fixed-delay policy.
func (c *Client) Invoke(ctx context.Context, model string, payload map[string]any) (map[string]any, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, invokeKey(model, payload)); ok {
			return cached, nil
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	response, err := c.postWithRetry(ctx, c.baseURL+"/"+model, body)
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := json.Unmarshal(response, &decoded); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}

	if c.cache != nil {
		c.cache.Set(ctx, invokeKey(model, payload), decoded)
	}
	return decoded, nil
}

// Embed returns one vector per input text from the named embedding model.
// The gateway may answer with a bare array of vectors or an object holding
// an "embeddings" field; both shapes are accepted.
func (c *Client) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("embedding model name is required")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(map[string]any{"inputs": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding payload: %w", err)
	}

	response, err := c.postWithRetry(ctx, c.baseURL+"/"+model, body)
	if err != nil {
		return nil, err
	}

	vectors, err := decodeEmbeddings(response)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

func decodeEmbeddings(response []byte) ([][]float32, error) {
	var vectors [][]float32
	if err := json.Unmarshal(response, &vectors); err == nil {
		return vectors, nil
	}

	var wrapped struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(response, &wrapped); err != nil || wrapped.Embeddings == nil {
		return nil, fmt.Errorf("embedding response has unexpected shape")
	}
	return wrapped.Embeddings, nil
}

func (c *Client) postWithRetry(ctx context.Context, url string, body []byte) ([]byte, error) {
	operation := func() ([]byte, error) {
		response, err := c.postOnce(ctx, url, body)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return response, nil
	}

	response, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(uint(c.retries)),
	)
	if err != nil {
		return nil, fmt.Errorf("invoke llm gateway: %w", err)
	}
	return response, nil
}

func (c *Client) postOnce(ctx context.Context, url string, body []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	response, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(response))}
	}
	return response, nil
}

// HealthStatus describes LLM gateway connectivity for the health endpoint.
type HealthStatus string

const (
	// HealthReachable means the gateway answered the connectivity probe.
	HealthReachable HealthStatus = "reachable"
	// HealthNotConfigured means no gateway client exists.
	HealthNotConfigured HealthStatus = "not_configured"
)

// CheckHealth probes the gateway root with a short timeout and reports the
// outcome in the health endpoint's vocabulary.
func (c *Client) CheckHealth(ctx context.Context) HealthStatus {
	if c == nil {
		return HealthNotConfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, c.healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return HealthStatus(fmt.Sprintf("unreachable (error: %v)", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus(fmt.Sprintf("unreachable (error: %v)", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return HealthReachable
	}
	return HealthStatus(fmt.Sprintf("unreachable (status: %d)", resp.StatusCode))
}
