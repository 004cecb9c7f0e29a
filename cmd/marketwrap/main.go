package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/shanehull/marketwrap/internal/ai"
	"github.com/shanehull/marketwrap/internal/common"
	"github.com/shanehull/marketwrap/internal/format"
	"github.com/shanehull/marketwrap/internal/notify"
	"github.com/shanehull/marketwrap/internal/pipeline"
	"github.com/shanehull/marketwrap/internal/search"
)

const (
	fallbackSearchDepth   = "basic"
	fallbackSearchResults = 3
	pageImageTimeout      = 10 * time.Second
)

var (
	configPath = flag.String("config", "", "Path to a TOML config file (optional)")
	envFile    = flag.String("env", ".env", "Path to a .env file with secrets (missing file is ignored)")
	schedule   = flag.String("schedule", "", "Cron expression to run on, e.g. '30 16 * * 1-5' (default: run once)")
	dryRun     = flag.Bool("dry-run", false, "Print the message instead of publishing it")
)

func init() {
	flag.Usage = func() {
		fmt.Printf("Usage of %s:\n", "marketwrap")

		for _, name := range []string{"config", "env", "schedule", "dry-run"} {
			if f := flag.CommandLine.Lookup(name); f != nil {
				fmt.Printf("  -%s\n", f.Name)
				fmt.Printf("    %s\n", f.Usage)
			}
		}
	}
}

func main() {
	flag.Parse()
	os.Exit(run())
}

// run returns the process exit code: 0 when the run is delivered, 1 otherwise.
func run() int {
	cfg, err := common.Load(*envFile, *configPath)
	if err != nil {
		fmt.Printf("Fatal error loading configuration: %v\n", err)
		return 1
	}
	if *schedule != "" {
		cfg.Schedule.Cron = *schedule
	}

	logger := common.InitLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := buildRunner(ctx, cfg, logger, *dryRun, os.Stdout)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialise pipeline")
		return 1
	}

	if cfg.Schedule.Cron == "" {
		if report := runner.Run(ctx); !report.OK() {
			return 1
		}
		return 0
	}

	if err := runScheduled(ctx, cfg, runner, logger); err != nil {
		logger.Error().Err(err).Str("schedule", cfg.Schedule.Cron).Msg("Failed to start scheduler")
		return 1
	}
	return 0
}

// buildRunner wires the configured providers into a pipeline.
func buildRunner(ctx context.Context, cfg *common.Config, logger arbor.ILogger, dryRun bool, out io.Writer) (*pipeline.Runner, error) {
	location := cfg.Location()
	searchTimeout := common.ParseDuration(cfg.Search.Timeout, 30*time.Second)
	llmTimeout := common.ParseDuration(cfg.LLM.Timeout, 30*time.Second)

	searchClient := search.NewClient(cfg.Search.APIKey, cfg.Search.BaseURL, searchTimeout)

	fetcher := search.NewNewsFetcher(searchClient, search.FetcherOptions{
		Query:      cfg.Search.Query,
		Depth:      cfg.Search.Depth,
		MaxResults: cfg.Search.MaxResults,
		Days:       cfg.Search.Days,
	}, logger)

	completer, err := ai.NewCompleter(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.LLM.Provider, err)
	}

	summarizer := ai.NewSummarizer(completer, ai.SummarizerOptions{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     llmTimeout,
		Location:    location,
	}, logger)

	fallbackFetcher := search.NewNewsFetcher(searchClient, search.FetcherOptions{
		Query:      cfg.Search.Query,
		Depth:      fallbackSearchDepth,
		MaxResults: fallbackSearchResults,
		Days:       cfg.Search.Days,
	}, logger)

	fallback := ai.NewFallbackSummarizer(fallbackFetcher, completer, ai.FallbackOptions{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.FallbackModel,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     llmTimeout,
		Location:    location,
	}, logger)

	pages := format.NewPageImageFinder(&http.Client{Timeout: pageImageTimeout})
	formatter := format.NewFormatter(searchClient, pages, location, searchTimeout, logger)

	return pipeline.NewRunner(fetcher, summarizer, fallback, formatter, newPublisher(cfg, logger, dryRun, out), logger), nil
}

func newPublisher(cfg *common.Config, logger arbor.ILogger, dryRun bool, out io.Writer) pipeline.Publisher {
	if dryRun {
		return notify.NewConsolePublisher(out)
	}

	switch cfg.Delivery.Channel {
	case "email":
		return notify.NewEmailPublisher(notify.EmailConfig{
			SMTPServer: cfg.Email.SMTPServer,
			SMTPPort:   cfg.Email.SMTPPort,
			SMTPUser:   cfg.Email.SMTPUser,
			SMTPPass:   cfg.Email.SMTPPass,
			FromEmail:  cfg.Email.FromEmail,
			ToEmail:    cfg.Email.ToEmail,
		}, logger)
	default:
		return notify.NewTelegramPublisher(notify.TelegramConfig{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			Endpoint: cfg.Telegram.Endpoint,
		}, nil, logger)
	}
}

// runScheduled runs the pipeline on the cron schedule until ctx is cancelled.
func runScheduled(ctx context.Context, cfg *common.Config, runner *pipeline.Runner, logger arbor.ILogger) error {
	c, err := newScheduler(cfg, func() { runner.Run(ctx) }, logger)
	if err != nil {
		return err
	}

	c.Start()
	logger.Info().Str("schedule", cfg.Schedule.Cron).Str("timezone", cfg.Location().String()).Msg("Scheduler started")

	<-ctx.Done()
	logger.Info().Msg("Shutting down scheduler")
	<-c.Stop().Done()
	return nil
}

// newScheduler registers job on the configured schedule. A tick that fires
// while the previous run is still going is skipped.
func newScheduler(cfg *common.Config, job func(), logger arbor.ILogger) (*cron.Cron, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(cfg.Schedule.Cron, job); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule.Cron, err)
	}
	return c, nil
}

// cronLogger adapts arbor to cron.Logger.
type cronLogger struct {
	logger arbor.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("details", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("details", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}
