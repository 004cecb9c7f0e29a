package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/shanehull/marketwrap/internal/types"
)

type stubCompleter struct {
	text    string
	err     error
	prompts []Prompt
}

func (s *stubCompleter) Complete(ctx context.Context, prompt Prompt) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.text, s.err
}

func testBundle() types.NewsBundle {
	return types.NewsBundle{
		Query: "us markets",
		Snippets: []types.Snippet{
			{Title: "S&P 500 fell 0.8%", Content: "Tech led the decline.", URL: "https://example.com/spx"},
		},
	}
}

func newTestSummarizer(c Completer) *Summarizer {
	s := NewSummarizer(c, SummarizerOptions{Provider: "groq", Model: "llama-3.1-8b-instant", MaxTokens: 900}, arbor.NewNoOpLogger())
	s.now = func() time.Time { return time.Date(2026, 10, 19, 21, 0, 0, 0, time.UTC) }
	return s
}

func TestSummarizeSuccess(t *testing.T) {
	stub := &stubCompleter{text: "Stocks slipped as the S&P 500 fell 0.8%.\n- Tech led losses."}
	summary, err := newTestSummarizer(stub).Summarize(context.Background(), testBundle())

	require.NoError(t, err)
	assert.Equal(t, types.TagMarketWrap, summary.Tag)
	assert.Equal(t, "US Market Wrap (2026-10-19)", summary.Title)
	assert.False(t, summary.Fallback)
	assert.Equal(t, []string{"https://example.com/spx"}, summary.Sources)
	assert.Less(t, summary.WordCount(), MaxSummaryWords)

	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0].System, "UNDER 500 words")
	assert.Contains(t, stub.prompts[0].User, "S&P 500 fell 0.8%")
	assert.Equal(t, "llama-3.1-8b-instant", stub.prompts[0].Model)
}

func TestSummarizeTrimsLongCompletions(t *testing.T) {
	stub := &stubCompleter{text: strings.Repeat("word ", 800)}
	summary, err := newTestSummarizer(stub).Summarize(context.Background(), testBundle())

	require.NoError(t, err)
	assert.Equal(t, MaxSummaryWords-1, summary.WordCount())
}

func TestSummarizeProviderErrorIsLLMError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("503 service unavailable")}
	_, err := newTestSummarizer(stub).Summarize(context.Background(), testBundle())

	var llmErr *types.LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, "groq", llmErr.Provider)
	assert.Equal(t, "llama-3.1-8b-instant", llmErr.Model)
}

func TestSummarizeEmptyCompletionIsLLMError(t *testing.T) {
	_, err := newTestSummarizer(&stubCompleter{}).Summarize(context.Background(), testBundle())

	require.True(t, types.IsLLMError(err))
	assert.ErrorIs(t, err, types.ErrEmptyCompletion)
}

func TestSummarizeEmptyBundle(t *testing.T) {
	stub := &stubCompleter{text: "unused"}
	_, err := newTestSummarizer(stub).Summarize(context.Background(), types.NewsBundle{Query: "q"})

	var emptyErr *types.EmptyResultError
	require.True(t, errors.As(err, &emptyErr))
	assert.False(t, types.IsLLMError(err))
	assert.Empty(t, stub.prompts)
}

func TestSummarizeTimeoutIsLLMError(t *testing.T) {
	blocking := completerFunc(func(ctx context.Context, _ Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	s := newTestSummarizer(blocking)
	s.opts.Timeout = 10 * time.Millisecond

	_, err := s.Summarize(context.Background(), testBundle())

	require.True(t, types.IsLLMError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type completerFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

func TestBuildFallbackPrompt(t *testing.T) {
	got := BuildFallbackPrompt([]types.Snippet{
		{Title: "Dow slips", URL: "https://a"},
		{Title: "Nasdaq gains", URL: "https://b"},
	})
	assert.Equal(t, "Write a concise (<300 words) US market wrap based on the news:\n- Dow slips: https://a\n- Nasdaq gains: https://b", got)
}

func TestCleanCompletion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text unchanged", "Stocks rose.", "Stocks rose."},
		{"strips markdown fence", "```markdown\nStocks rose.\n```", "Stocks rose."},
		{"strips plain fence", "```\nStocks rose.\n```", "Stocks rose."},
		{"trims whitespace", "  Stocks rose.  \n", "Stocks rose."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanCompletion(tt.input))
		})
	}
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("Error 429: Rate limit reached for model")))
	assert.True(t, IsRateLimitError(errors.New("RESOURCE_EXHAUSTED")))
	assert.False(t, IsRateLimitError(errors.New("bad request")))
	assert.False(t, IsRateLimitError(errors.New("request req_4291a failed: context length 14290 exceeds limit")))
	assert.False(t, IsRateLimitError(errors.New("invalid api key sk-...429")))
	assert.False(t, IsRateLimitError(nil))

	quota := fmt.Errorf("gemini API call failed: %w", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"})
	assert.Equal(t, 429, StatusCode(quota))
	assert.True(t, IsRateLimitError(quota))

	assert.True(t, IsServerError(errors.New("500 Internal Server Error")))
	assert.False(t, IsServerError(errors.New("invalid api key")))

	gemini := fmt.Errorf("gemini API call failed: %w", genai.APIError{Code: 503, Status: "UNAVAILABLE"})
	assert.Equal(t, 503, StatusCode(gemini))
	assert.True(t, IsServerError(gemini))
}
