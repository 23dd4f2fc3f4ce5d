// Package gemini implements extractor.Extractor with Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"matador/internal/extractor"
)

const DefaultModel = "gemini-1.5-flash"

type Client struct {
	client *genai.Client
	model  string
}

var _ extractor.Extractor = (*Client)(nil)

func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Extract builds a model per call because the system instruction carries
// per-user context.
func (c *Client) Extract(ctx context.Context, text string, uc extractor.Context) (extractor.Intent, error) {
	m := c.client.GenerativeModel(c.model)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(extractor.SystemPrompt(uc))}}
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.7)
	m.SetMaxOutputTokens(500)

	resp, err := m.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return extractor.Intent{}, fmt.Errorf("%w: call gemini: %v", extractor.ErrExtractorFailure, err)
	}
	out, err := responseText(resp)
	if err != nil {
		return extractor.Intent{}, err
	}
	return extractor.ParseIntent(out)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty gemini response", extractor.ErrExtractorFailure)
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: gemini response without text", extractor.ErrExtractorFailure)
	}
	return sb.String(), nil
}
