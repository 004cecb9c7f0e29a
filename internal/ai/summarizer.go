package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/shanehull/marketwrap/internal/types"
)

// SummarizerOptions configures the primary summary call.
type SummarizerOptions struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Location    *time.Location
}

// Summarizer turns a news bundle into a dated market wrap with one completion.
type Summarizer struct {
	completer Completer
	opts      SummarizerOptions
	logger    arbor.ILogger
	now       func() time.Time
}

func NewSummarizer(completer Completer, opts SummarizerOptions, logger arbor.ILogger) *Summarizer {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Summarizer{
		completer: completer,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Summarize issues a single completion. Any provider failure, timeout or empty
// completion is returned as *types.LLMError.
func (s *Summarizer) Summarize(ctx context.Context, bundle types.NewsBundle) (types.Summary, error) {
	if len(bundle.Snippets) == 0 {
		return types.Summary{}, &types.EmptyResultError{Query: bundle.Query}
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	s.logger.Info().Str("model", s.opts.Model).Int("snippets", len(bundle.Snippets)).Msg("Generating market wrap")

	text, err := s.completer.Complete(ctx, Prompt{
		System:      summaryInstruction,
		User:        buildSummaryPrompt(bundle),
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return types.Summary{}, s.llmError(err)
	}
	if text == "" {
		return types.Summary{}, s.llmError(types.ErrEmptyCompletion)
	}

	return NewSummary(types.TagMarketWrap, text, s.opts.Model, bundle.URLs(), s.now().In(s.opts.Location), false), nil
}

func (s *Summarizer) llmError(err error) error {
	return &types.LLMError{Provider: s.opts.Provider, Model: s.opts.Model, Err: err}
}

// NewSummary builds a tagged, dated summary whose body is kept under
// MaxSummaryWords.
func NewSummary(tag, body, model string, sources []string, date time.Time, fallback bool) types.Summary {
	return types.Summary{
		Title:    fmt.Sprintf("%s (%s)", tag, date.Format("2006-01-02")),
		Tag:      tag,
		Body:     types.TruncateWords(body, MaxSummaryWords-1),
		Date:     date,
		Model:    model,
		Sources:  sources,
		Fallback: fallback,
	}
}
