package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type GeminiCompleter struct {
	client *genai.Client
}

func NewGeminiCompleter(ctx context.Context, apiKey, baseURL string) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client}, nil
}

func (c *GeminiCompleter) Complete(ctx context.Context, prompt Prompt) (string, error) {
	userContent := &genai.Content{
		Parts: []*genai.Part{
			{Text: prompt.User},
		},
		Role: "user",
	}

	temperature := float32(prompt.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(prompt.MaxTokens),
	}
	if prompt.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: prompt.System},
			},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, prompt.Model, []*genai.Content{userContent}, config)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	return cleanCompletion(resp.Text()), nil
}
