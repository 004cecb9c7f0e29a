package ai

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/shanehull/marketwrap/internal/types"
)

// Fallback retry constants. Waits grow linearly with the attempt number.
const (
	FallbackMaxAttempts     = 3
	FallbackRateLimitWait   = 15 * time.Second
	FallbackServerErrorWait = 10 * time.Second
)

// NewsSource returns a fresh bundle of news snippets.
type NewsSource interface {
	Fetch(ctx context.Context) (types.NewsBundle, error)
}

// FallbackOptions configures the direct fetch and summarize path.
type FallbackOptions struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Location    *time.Location
}

// FallbackSummarizer is the single-completion backup path used when the
// primary summary fails. It searches again with a cheap query and sends one
// short prompt, retrying only on rate limits and provider 5xx errors.
type FallbackSummarizer struct {
	source    NewsSource
	completer Completer
	opts      FallbackOptions
	logger    arbor.ILogger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewFallbackSummarizer(source NewsSource, completer Completer, opts FallbackOptions, logger arbor.ILogger) *FallbackSummarizer {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &FallbackSummarizer{
		source:    source,
		completer: completer,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Summarize fetches fresh news and writes a short wrap. Search failures are
// returned as is; completion failures as *types.LLMError.
func (f *FallbackSummarizer) Summarize(ctx context.Context) (types.Summary, error) {
	bundle, err := f.source.Fetch(ctx)
	if err != nil {
		return types.Summary{}, err
	}
	if len(bundle.Snippets) == 0 {
		return types.Summary{}, &types.EmptyResultError{Query: bundle.Query}
	}

	prompt := Prompt{
		User:        BuildFallbackPrompt(bundle.Snippets),
		Model:       f.opts.Model,
		Temperature: f.opts.Temperature,
		MaxTokens:   f.opts.MaxTokens,
	}

	f.logger.Info().Str("model", f.opts.Model).Int("snippets", len(bundle.Snippets)).Msg("Generating fallback market wrap")

	var lastErr error
	for attempt := 1; attempt <= FallbackMaxAttempts; attempt++ {
		text, err := f.complete(ctx, prompt)
		if err == nil && text != "" {
			return NewSummary(types.TagMarketWrapFallback, text, f.opts.Model, bundle.URLs(), f.now().In(f.opts.Location), true), nil
		}
		if err == nil {
			err = types.ErrEmptyCompletion
		}
		lastErr = err

		wait := retryWait(err, attempt)
		if wait == 0 || attempt == FallbackMaxAttempts {
			break
		}

		f.logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("Fallback completion failed, retrying")

		if err := f.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	return types.Summary{}, &types.LLMError{Provider: f.opts.Provider, Model: f.opts.Model, Err: lastErr}
}

func (f *FallbackSummarizer) complete(ctx context.Context, prompt Prompt) (string, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}
	return f.completer.Complete(ctx, prompt)
}

// retryWait returns how long to wait before the next attempt, or 0 when the
// error is not retryable.
func retryWait(err error, attempt int) time.Duration {
	switch {
	case IsRateLimitError(err):
		return FallbackRateLimitWait * time.Duration(attempt)
	case IsServerError(err):
		return FallbackServerErrorWait * time.Duration(attempt)
	default:
		return 0
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
