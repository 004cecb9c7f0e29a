package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAICompleter talks to any OpenAI-compatible chat completions endpoint,
// Groq included.
type OpenAICompleter struct {
	client *openai.Client
}

func NewOpenAICompleter(apiKey, baseURL string, opts ...option.RequestOption) *OpenAICompleter {
	all := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)

	client := openai.NewClient(all...)
	return &OpenAICompleter{client: &client}
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt Prompt) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(prompt.Model),
		Messages:    messages,
		Temperature: openai.Float(prompt.Temperature),
	}
	if prompt.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(prompt.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	return cleanCompletion(resp.Choices[0].Message.Content), nil
}
