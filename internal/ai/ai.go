/*
Package ai provides completion clients for the supported LLM providers and the
market wrap summarizer built on top of them.
*/
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/shanehull/marketwrap/internal/common"
)

// Prompt is a single provider-agnostic completion request.
type Prompt struct {
	System      string
	User        string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Completer returns the completion text for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// NewCompleter creates the client for the configured provider.
func NewCompleter(ctx context.Context, cfg common.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case "groq", "openai":
		return NewOpenAICompleter(cfg.APIKey, cfg.BaseURL), nil
	case "gemini":
		c, err := NewGeminiCompleter(ctx, cfg.APIKey, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "anthropic":
		return NewAnthropicCompleter(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// StatusCode extracts the HTTP status from a provider error, or 0.
func StatusCode(err error) int {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return anErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

// IsRateLimitError matches typed 429 responses and quota exhaustion
// messages. A bare "429" in the text is not enough, it shows up in request
// ids and token counts.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if StatusCode(err) == http.StatusTooManyRequests {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "resource_exhausted")
}

// IsServerError matches 5xx responses from the provider.
func IsServerError(err error) bool {
	if err == nil {
		return false
	}
	if code := StatusCode(err); code >= 500 {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "bad gateway")
}

// cleanCompletion strips code fences and surrounding whitespace models
// sometimes wrap plain text in.
func cleanCompletion(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```markdown")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
