package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UpstreamError is any failure talking to the text-generation service:
// transport errors, auth rejections, rate limits, 5xx.
type UpstreamError struct {
	Status int // 0 for transport-level failures
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("openai api error: status=%d body=%s", e.Status, e.Body)
	}
	return fmt.Sprintf("openai request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt.
// Rate limits, server errors and transport failures are transient;
// 4xx rejections are not.
func (e *UpstreamError) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type Client struct {
	apiKey string
	model  string
	base   string
	http   *http.Client
}

func NewClient(apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
		base:   "https://api.openai.com/v1",
		http:   &http.Client{Timeout: timeout},
	}
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatRequest struct {
	Model          string              `json:"model"`
	Messages       []map[string]string `json:"messages"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Temperature    float32             `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat     `json:"response_format,omitempty"`
}

type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Chat sends a system/user message pair and returns the raw assistant
// text. JSONMode adds response_format json_object so the model is held
// to valid JSON; the contract itself is still verified by the caller.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	url := c.base + "/chat/completions"
	b, _ := json.Marshal(req)
	r, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	r.Header.Set("Authorization", "Bearer "+c.apiKey)
	r.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(r)
	if err != nil {
		return "", &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", &UpstreamError{Status: resp.StatusCode, Body: string(bodyBytes)}
	}

	var ch ChatResponse
	if err := json.Unmarshal(bodyBytes, &ch); err != nil {
		return "", fmt.Errorf("decode error: %w, body: %s", err, string(bodyBytes))
	}

	if ch.Error != nil {
		return "", &UpstreamError{Status: resp.StatusCode, Body: ch.Error.Message}
	}

	if len(ch.Choices) == 0 {
		return "", &UpstreamError{Status: resp.StatusCode, Body: "no choices returned"}
	}
	return ch.Choices[0].Message.Content, nil
}

// JSONMode returns the response_format flag for strict-JSON output.
func JSONMode() *ResponseFormat {
	return &ResponseFormat{Type: "json_object"}
}
