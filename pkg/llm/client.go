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
)

const (
	// DefaultModel is used when a provider is configured without one
	DefaultModel = "gpt-4"

	defaultBaseURL = "https://api.openai.com/v1"
)

// Backend error taxonomy. Rate limiting is the only retryable class.
var (
	ErrRateLimited = errors.New("backend rate limited")
	ErrCredential  = errors.New("backend rejected credentials")
	ErrQuota       = errors.New("backend quota exhausted")
)

// Message is a single role-tagged chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the uniform call shape for all generation backends
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Provider generates text from a chat-style request
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// HTTPClient interface for mocking http.Client
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to an OpenAI-compatible chat completion endpoint
type Client struct {
	name       string
	baseURL    string
	token      string
	model      string
	httpClient HTTPClient
}

// NewClient creates a provider for an OpenAI-compatible API.
// Empty baseURL and model fall back to the OpenAI defaults.
func NewClient(name, baseURL, token, model string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		model:      model,
		httpClient: http.DefaultClient,
	}
}

// Name returns the provider name used in logs
func (c *Client) Name() string {
	return c.name
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete sends a chat completion request and returns the generated text
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := chatRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return result.Choices[0].Message.Content, nil
}

// statusError maps a non-200 response onto the backend error taxonomy
func (c *Client) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	var apiErr errorResponse
	_ = json.Unmarshal(raw, &apiErr)

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		if apiErr.Error.Type == "insufficient_quota" || apiErr.Error.Code == "insufficient_quota" {
			return fmt.Errorf("%w: %s", ErrQuota, apiErr.Error.Message)
		}
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Error.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrCredential, apiErr.Error.Message)
	}

	return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(raw))
}
