// Package deepseek implements extractor.Extractor against an
// OpenAI-compatible chat completions endpoint.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"matador/internal/extractor"
)

const (
	DefaultURL   = "https://api.deepseek.com/v1/chat/completions"
	DefaultModel = "deepseek-chat"
)

type Config struct {
	APIKey  string
	URL     string
	Model   string
	Timeout time.Duration
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type Client struct {
	apiKey     string
	url        string
	model      string
	httpClient *http.Client
}

var _ extractor.Extractor = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("deepseek: API key is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		url:        cfg.URL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *Client) Extract(ctx context.Context, text string, uc extractor.Context) (extractor.Intent, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: extractor.SystemPrompt(uc)},
			{Role: "user", Content: text},
		},
		Temperature:    0.7,
		MaxTokens:      500,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return extractor.Intent{}, fmt.Errorf("%w: encode request: %v", extractor.ErrExtractorFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return extractor.Intent{}, fmt.Errorf("%w: build request: %v", extractor.ErrExtractorFailure, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return extractor.Intent{}, fmt.Errorf("%w: call deepseek: %v", extractor.ErrExtractorFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return extractor.Intent{}, fmt.Errorf("%w: read response: %v", extractor.ErrExtractorFailure, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return extractor.Intent{}, fmt.Errorf("%w: decode response (status %d): %v", extractor.ErrExtractorFailure, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return extractor.Intent{}, fmt.Errorf("%w: deepseek status %d: %s", extractor.ErrExtractorFailure, resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return extractor.Intent{}, fmt.Errorf("%w: empty choices", extractor.ErrExtractorFailure)
	}

	content := parsed.Choices[0].Message.Content
	slog.DebugContext(ctx, "DeepSeek response received",
		"duration_ms", time.Since(start).Milliseconds(),
		"bytes", len(content))

	return extractor.ParseIntent(content)
}
