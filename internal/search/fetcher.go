package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/shanehull/marketwrap/internal/types"
)

const chartQueryTemplate = "financial charts stock market %s S&P 500 Nasdaq Dow Jones"

// FetcherOptions controls the news query.
type FetcherOptions struct {
	Query      string
	Depth      string
	MaxResults int
	Days       int
}

// NewsFetcher retrieves the current day's US market news.
type NewsFetcher struct {
	client *Client
	opts   FetcherOptions
	logger arbor.ILogger
	now    func() time.Time
}

func NewNewsFetcher(client *Client, opts FetcherOptions, logger arbor.ILogger) *NewsFetcher {
	return &NewsFetcher{
		client: client,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Fetch returns the ranked snippets for the configured query. An empty result
// set is reported as *types.EmptyResultError.
func (f *NewsFetcher) Fetch(ctx context.Context) (types.NewsBundle, error) {
	f.logger.Info().Str("query", f.opts.Query).Str("depth", f.opts.Depth).Msg("Searching for market news")

	resp, err := f.client.Search(ctx, Request{
		Query:         f.opts.Query,
		Topic:         "news",
		SearchDepth:   f.opts.Depth,
		MaxResults:    f.opts.MaxResults,
		Days:          f.opts.Days,
		IncludeImages: true,
		IncludeAnswer: true,
	})
	if err != nil {
		return types.NewsBundle{}, err
	}

	bundle := toBundle(f.opts.Query, resp, f.now())
	if len(bundle.Snippets) == 0 {
		return bundle, &types.EmptyResultError{Query: f.opts.Query}
	}

	f.logger.Info().Int("snippets", len(bundle.Snippets)).Msg("News fetched")
	return bundle, nil
}

// ImageSearch looks for chart images related to topic.
func (c *Client) ImageSearch(ctx context.Context, topic string) ([]types.Image, error) {
	resp, err := c.Search(ctx, Request{
		Query:                    fmt.Sprintf(chartQueryTemplate, strings.TrimSpace(topic)),
		SearchDepth:              "basic",
		MaxResults:               3,
		IncludeImages:            true,
		IncludeImageDescriptions: true,
	})
	if err != nil {
		return nil, err
	}

	images := make([]types.Image, 0, len(resp.Images))
	for _, img := range resp.Images {
		if img.URL == "" {
			continue
		}
		images = append(images, types.Image{URL: img.URL, Description: img.Description})
	}
	return images, nil
}

func toBundle(query string, resp *Response, fetchedAt time.Time) types.NewsBundle {
	bundle := types.NewsBundle{
		Query:     query,
		Answer:    strings.TrimSpace(resp.Answer),
		FetchedAt: fetchedAt,
	}
	for _, r := range resp.Results {
		if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Content) == "" {
			continue
		}
		bundle.Snippets = append(bundle.Snippets, types.Snippet{
			Title:         strings.TrimSpace(r.Title),
			Content:       strings.TrimSpace(r.Content),
			URL:           r.URL,
			PublishedDate: r.PublishedDate,
		})
	}
	return bundle
}
