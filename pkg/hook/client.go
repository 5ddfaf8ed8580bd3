// Package hook enriches completion requests with retrieved context before
// they reach the model. It calls the context endpoint and injects the
// returned items as a system message; any failure leaves the request
// untouched.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts per request
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the starting backoff between attempts
	DefaultRetryDelay = 500 * time.Millisecond

	maxRetryDelay = 5 * time.Second
)

// Config holds the context endpoint settings.
type Config struct {
	// BaseURL is the context service root, e.g. "http://weave:8080".
	BaseURL string

	// APIKey is sent as x-api-key on every request.
	APIKey string

	// TokenType labels the auth tokens this deployment forwards.
	TokenType string

	// Timeout bounds a single attempt. Defaults to 30s.
	Timeout time.Duration

	// MaxRetries caps attempts per request. Defaults to 3.
	MaxRetries int

	// RetryDelay is the starting backoff; it doubles per attempt up to 5s.
	RetryDelay time.Duration
}

// ContextRequest is the payload posted to the context endpoint.
type ContextRequest struct {
	AuthToken      string `json:"auth_token"`
	TokenType      string `json:"token_type"`
	Prompt         string `json:"prompt"`
	HistorySummary string `json:"history_summary,omitempty"`
}

// ContextItem is one piece of retrieved context.
type ContextItem struct {
	Content  string         `json:"content"`
	Role     string         `json:"role"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ContextResponse is the context endpoint's reply.
type ContextResponse struct {
	ContextItems []ContextItem  `json:"context_items"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Client calls the context endpoint.
type Client struct {
	httpClient *http.Client
	logger     ectologger.Logger
	config     Config
}

// NewClient creates a new context client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		config:     cfg,
	}
}

// GetContext fetches context items for a prompt. Transport failures and 5xx
// responses are retried with exponential backoff; 4xx responses are not.
func (c *Client) GetContext(ctx context.Context, authToken, prompt, historySummary string) (*ContextResponse, error) {
	if c.config.APIKey == "" || authToken == "" || prompt == "" {
		return nil, fmt.Errorf("api key, auth token and prompt are required")
	}

	payload, err := json.Marshal(ContextRequest{
		AuthToken:      authToken,
		TokenType:      c.config.TokenType,
		Prompt:         prompt,
		HistorySummary: historySummary,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize context request: %w", err)
	}

	url := c.config.BaseURL + "/context"
	delay := c.config.RetryDelay

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = delay * 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		}

		response, retryable, err := c.post(ctx, url, payload)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.logger.WithContext(ctx).WithError(err).Warnf("Context request attempt %d/%d failed", attempt, c.config.MaxRetries)
	}

	return nil, lastErr
}

func (c *Client) post(ctx context.Context, url string, payload []byte) (*ContextResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("context request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read context response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("context endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var response ContextResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, false, fmt.Errorf("failed to parse context response: %w", err)
	}
	return &response, false, nil
}
