/*
Package pipeline runs one market wrap from search to delivery.

A run starts in PRIMARY and fetches, summarizes, formats and publishes. An
LLM failure during the primary summary moves the run to FALLBACK, which
fetches and summarizes again on a simpler path before formatting and
publishing. Every other error ends the run in FAILED.
*/
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/shanehull/marketwrap/internal/types"
)

// State is the position of a run in the pipeline.
type State string

const (
	StatePrimary  State = "PRIMARY"
	StateFallback State = "FALLBACK"
	StateDone     State = "DONE"
	StateFailed   State = "FAILED"
)

type Fetcher interface {
	Fetch(ctx context.Context) (types.NewsBundle, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, bundle types.NewsBundle) (types.Summary, error)
}

// FallbackSummarizer fetches its own news and produces a summary in one step.
type FallbackSummarizer interface {
	Summarize(ctx context.Context) (types.Summary, error)
}

// Formatter must not fail. Image lookup problems degrade to a plain message.
type Formatter interface {
	Format(ctx context.Context, summary types.Summary) types.FormattedMessage
}

type Publisher interface {
	Publish(ctx context.Context, msg types.FormattedMessage) (types.DeliveryResult, error)
}

// Report describes the outcome of a single run.
type Report struct {
	RunID   string
	State   State
	Path    State // PRIMARY or FALLBACK, whichever produced the summary
	Summary types.Summary
	Result  types.DeliveryResult
	Err     error
	Elapsed time.Duration
}

// OK reports whether the run ended in DONE.
func (r Report) OK() bool {
	return r.State == StateDone
}

// Runner wires the pipeline stages together. It holds no state between runs.
type Runner struct {
	fetcher    Fetcher
	summarizer Summarizer
	fallback   FallbackSummarizer
	formatter  Formatter
	publisher  Publisher
	logger     arbor.ILogger
	now        func() time.Time
}

func NewRunner(fetcher Fetcher, summarizer Summarizer, fallback FallbackSummarizer, formatter Formatter, publisher Publisher, logger arbor.ILogger) *Runner {
	return &Runner{
		fetcher:    fetcher,
		summarizer: summarizer,
		fallback:   fallback,
		formatter:  formatter,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one pass of the pipeline. The returned report always carries a
// terminal state.
func (r *Runner) Run(ctx context.Context) Report {
	report := Report{RunID: uuid.NewString(), State: StatePrimary}
	logger := r.logger.WithCorrelationId(report.RunID)
	start := r.now()

	logger.Info().Str("run_id", report.RunID).Msg("Market wrap run started")

	summary, err := r.primary(ctx, logger)
	if types.IsLLMError(err) {
		logger.Warn().Err(err).Str("run_id", report.RunID).Msg("Summary failed, switching to fallback path")
		report.State = StateFallback
		summary, err = r.fallback.Summarize(ctx)
	}

	report.Path = report.State
	if err != nil {
		return r.finish(logger, report, start, err)
	}
	report.Summary = summary

	logger.Info().
		Str("run_id", report.RunID).
		Str("path", string(report.Path)).
		Str("title", summary.Title).
		Int("words", summary.WordCount()).
		Msg("Summary ready")

	msg := r.formatter.Format(ctx, summary)

	result, err := r.publisher.Publish(ctx, msg)
	if err != nil {
		return r.finish(logger, report, start, err)
	}
	report.Result = result

	return r.finish(logger, report, start, nil)
}

func (r *Runner) primary(ctx context.Context, logger arbor.ILogger) (types.Summary, error) {
	bundle, err := r.fetcher.Fetch(ctx)
	if err != nil {
		return types.Summary{}, err
	}
	logger.Info().Int("snippets", len(bundle.Snippets)).Msg("News fetched")

	return r.summarizer.Summarize(ctx, bundle)
}

func (r *Runner) finish(logger arbor.ILogger, report Report, start time.Time, err error) Report {
	report.Elapsed = r.now().Sub(start)

	if err != nil {
		report.State = StateFailed
		report.Err = err
		logger.Error().
			Err(err).
			Str("run_id", report.RunID).
			Str("path", string(report.Path)).
			Str("kind", errorKind(err)).
			Dur("elapsed", report.Elapsed).
			Msg("Market wrap run failed")
		return report
	}

	report.State = StateDone
	logger.Info().
		Str("run_id", report.RunID).
		Str("path", string(report.Path)).
		Str("channel", report.Result.Channel).
		Str("message_id", report.Result.MessageID).
		Dur("elapsed", report.Elapsed).
		Msg("Market wrap delivered")
	return report
}

func errorKind(err error) string {
	var (
		providerErr *types.ProviderError
		emptyErr    *types.EmptyResultError
		llmErr      *types.LLMError
		deliveryErr *types.DeliveryError
	)
	switch {
	case errors.As(err, &deliveryErr):
		return "delivery"
	case errors.As(err, &llmErr):
		return "llm"
	case errors.As(err, &emptyErr):
		return "empty_result"
	case errors.As(err, &providerErr):
		return "provider"
	default:
		return "unknown"
	}
}
