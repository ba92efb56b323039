package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model answers without any text.
var ErrEmptyResponse = errors.New("empty response")

// generator is the subset of *genai.Models used by Client.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements domain.LanguageModel on the Gemini API.
type Client struct {
	models generator
	model  string
}

// NewClient creates a Gemini API client for model.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &Client{models: c.Models, model: model}, nil
}

// Generate sends prompt as a single user turn and returns the reply text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: %s: %w", c.model, ErrEmptyResponse)
	}
	return text, nil
}
