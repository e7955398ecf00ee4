// Package llm calls the Anthropic Messages API to read a verification
// code out of a forwarded 2FA email. The instruction constrains the
// model to reply with either a bare digit string or the NoCodeMarker;
// callers validate the reply against that grammar.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1/messages"
	defaultModel     = "claude-3-5-haiku-20241022"
	anthropicVersion = "2023-06-01"
	maxRetries       = 3
	initialDelay     = 1 * time.Second
)

// NoCodeMarker is the literal the model is instructed to return when the
// email contains no verification code.
const NoCodeMarker = "NONE"

const systemPrompt = "You extract numeric verification codes from emails. " +
	"Reply with ONLY the bare 4-8 digit verification code, nothing else. " +
	"If the email contains no verification code, reply with exactly " + NoCodeMarker + "."

// Client is the primary extraction collaborator. Implementations return
// the model's raw reply text; transport and API failures surface as errors.
type Client interface {
	ExtractCode(ctx context.Context, subject, body string) (string, error)
}

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Options configures an AnthropicClient. Zero values fall back to defaults.
type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
func NewAnthropicClient(apiKey string, opts Options) *AnthropicClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &AnthropicClient{
		apiKey:  apiKey,
		baseURL: opts.BaseURL,
		model:   opts.Model,
		client:  &http.Client{Timeout: opts.Timeout},
	}
}

// ExtractCode sends the email to the model and returns the trimmed reply
// text. Retries with exponential backoff on 429/5xx.
func (c *AnthropicClient) ExtractCode(ctx context.Context, subject, body string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("anthropic API key not set")
	}

	userPrompt := fmt.Sprintf("Subject: %s\n\n%s", subject, body)
	req := anthropicRequest{
		Model:     c.model,
		MaxTokens: 32,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: userPrompt},
		},
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt))) * initialDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(reqBody))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("anthropic API error (%d): %s", resp.StatusCode, string(respBody))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return "", lastErr
		}

		var apiResp anthropicResponse
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(apiResp.Content) == 0 {
			return "", fmt.Errorf("empty response content")
		}

		return trimReply(apiResp.Content[0].Text), nil
	}

	return "", fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// trimReply strips surrounding whitespace and any markdown fencing the
// model might wrap around the code.
func trimReply(text string) string {
	s := text
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\n' || s[0] == '\t' || s[0] == '`') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\n' || s[len(s)-1] == '\t' || s[len(s)-1] == '`') {
		s = s[:len(s)-1]
	}
	return s
}
