/*
Package search queries the Tavily search API for market news and chart images.
*/
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shanehull/marketwrap/internal/types"
)

const providerName = "tavily"

// Request is the body of a Tavily search call.
type Request struct {
	APIKey                   string `json:"api_key"`
	Query                    string `json:"query"`
	Topic                    string `json:"topic,omitempty"`
	SearchDepth              string `json:"search_depth,omitempty"`
	MaxResults               int    `json:"max_results,omitempty"`
	Days                     int    `json:"days,omitempty"`
	IncludeImages            bool   `json:"include_images"`
	IncludeImageDescriptions bool   `json:"include_image_descriptions"`
	IncludeAnswer            bool   `json:"include_answer"`
}

type Result struct {
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	URL           string  `json:"url"`
	PublishedDate string  `json:"published_date"`
	Score         float64 `json:"score"`
}

type Image struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

type Response struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer"`
	Results []Result `json:"results"`
	Images  []Image  `json:"images"`
}

// Client is a thin Tavily HTTP client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search posts req to /search. Transport failures and non-2xx statuses are
// returned as *types.ProviderError.
func (c *Client) Search(ctx context.Context, req Request) (*Response, error) {
	req.APIKey = c.apiKey

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, &types.ProviderError{Provider: providerName, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &types.ProviderError{Provider: providerName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &types.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(msg))),
		}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &types.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return &out, nil
}
