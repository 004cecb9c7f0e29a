package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/shanehull/marketwrap/internal/common"
	"github.com/shanehull/marketwrap/internal/notify"
	"github.com/shanehull/marketwrap/internal/pipeline"
)

// fakeAPIs serves Tavily, an OpenAI-compatible LLM and the Telegram Bot API
// from one test server.
type fakeAPIs struct {
	mu             sync.Mutex
	primaryLLMCode int
	searchDepths   []string
	completions    int
	telegramTexts  []string
}

func (f *fakeAPIs) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/tavily/search", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SearchDepth              string `json:"search_depth"`
			IncludeImageDescriptions bool   `json:"include_image_descriptions"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")

		if req.IncludeImageDescriptions {
			w.Write([]byte(`{"results":[],"images":[]}`))
			return
		}

		f.mu.Lock()
		f.searchDepths = append(f.searchDepths, req.SearchDepth)
		f.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]interface{}{
			"query": "us markets",
			"results": []map[string]interface{}{
				{"title": "S&P 500 fell 0.8%", "content": "Stocks slid as yields rose.", "url": "http://" + r.Host + "/article"},
			},
		})
	})

	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Markets</title></head><body>No preview.</body></html>`))
	})

	mux.HandleFunc("/llm/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []map[string]interface{} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")

		f.mu.Lock()
		f.completions++
		f.mu.Unlock()

		// The primary prompt carries a system message, the fallback prompt does not.
		primary := len(req.Messages) > 1
		if primary && f.primaryLLMCode != 0 {
			w.WriteHeader(f.primaryLLMCode)
			w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`))
			return
		}

		content := "Stocks slipped as the S&P 500 fell 0.8%."
		if !primary {
			content = "Stocks ended lower on the day."
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1760900000,
			"model":   "llama-3.1-8b-instant",
			"choices": []map[string]interface{}{
				{"index": 0, "finish_reason": "stop", "message": map[string]interface{}{"role": "assistant", "content": content}},
			},
		})
	})

	mux.HandleFunc("/telegram/", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")

		if strings.HasSuffix(r.URL.Path, "/getMe") {
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Wrap","username":"wrap_bot"}}`))
			return
		}

		f.mu.Lock()
		f.telegramTexts = append(f.telegramTexts, r.PostForm.Get("text"))
		f.mu.Unlock()
		w.Write([]byte(`{"ok":true,"result":{"message_id":99,"date":1760900000,"chat":{"id":-100123,"type":"channel"}}}`))
	})

	return mux
}

func testConfig(baseURL string) *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Search.APIKey = "tvly-test"
	cfg.Search.BaseURL = baseURL + "/tavily"
	cfg.LLM.APIKey = "gsk-test"
	cfg.LLM.BaseURL = baseURL + "/llm/"
	cfg.LLM.Model = "llama-3.1-8b-instant"
	cfg.LLM.FallbackModel = "llama-3.1-8b-instant"
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.ChatID = "-100123"
	cfg.Telegram.Endpoint = baseURL + "/telegram/bot%s/%s"
	return cfg
}

func runOnce(t *testing.T, apis *fakeAPIs, dryRun bool, out *bytes.Buffer) pipeline.Report {
	srv := httptest.NewServer(apis.handler(t))
	t.Cleanup(srv.Close)

	runner, err := buildRunner(context.Background(), testConfig(srv.URL), arbor.NewNoOpLogger(), dryRun, out)
	require.NoError(t, err)
	return runner.Run(context.Background())
}

func TestRunPrimaryPathDelivers(t *testing.T) {
	apis := &fakeAPIs{}

	report := runOnce(t, apis, false, nil)

	require.NoError(t, report.Err)
	assert.Equal(t, pipeline.StateDone, report.State)
	assert.Equal(t, pipeline.StatePrimary, report.Path)
	assert.Equal(t, "99", report.Result.MessageID)
	assert.Equal(t, []string{"advanced"}, apis.searchDepths)
	assert.Equal(t, 1, apis.completions)

	require.Len(t, apis.telegramTexts, 1)
	text := apis.telegramTexts[0]
	assert.Contains(t, text, "US Market Wrap (")
	assert.Contains(t, text, "S&P 500 fell 0.8%")
	assert.NotContains(t, text, "Charts")
}

func TestRunFallbackPathDelivers(t *testing.T) {
	apis := &fakeAPIs{primaryLLMCode: http.StatusUnauthorized}

	report := runOnce(t, apis, false, nil)

	require.NoError(t, report.Err)
	assert.Equal(t, pipeline.StateDone, report.State)
	assert.Equal(t, pipeline.StateFallback, report.Path)
	assert.Contains(t, report.Summary.Title, "Fallback")
	assert.Equal(t, []string{"advanced", "basic"}, apis.searchDepths)

	require.Len(t, apis.telegramTexts, 1)
	assert.Contains(t, apis.telegramTexts[0], "US Market Wrap - Fallback")
	assert.Contains(t, apis.telegramTexts[0], "Stocks ended lower on the day.")
}

func TestRunDryRunPrints(t *testing.T) {
	apis := &fakeAPIs{}
	var out bytes.Buffer

	report := runOnce(t, apis, true, &out)

	require.NoError(t, report.Err)
	assert.Equal(t, "console", report.Result.Channel)
	assert.Contains(t, out.String(), "S&P 500 fell 0.8%")
	assert.Empty(t, apis.telegramTexts)
}

func TestNewPublisherSelectsChannel(t *testing.T) {
	cfg := common.NewDefaultConfig()
	logger := arbor.NewNoOpLogger()

	assert.IsType(t, &notify.TelegramPublisher{}, newPublisher(cfg, logger, false, nil))
	assert.IsType(t, &notify.ConsolePublisher{}, newPublisher(cfg, logger, true, nil))

	cfg.Delivery.Channel = "email"
	assert.IsType(t, &notify.EmailPublisher{}, newPublisher(cfg, logger, false, nil))
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Schedule.Cron = "30 16 * * 1-5"

	var (
		mu      sync.Mutex
		started int
	)
	release := make(chan struct{})
	running := make(chan struct{})
	job := func() {
		mu.Lock()
		started++
		mu.Unlock()
		running <- struct{}{}
		<-release
	}

	c, err := newScheduler(cfg, job, arbor.NewNoOpLogger())
	require.NoError(t, err)
	entries := c.Entries()
	require.Len(t, entries, 1)
	tick := entries[0].WrappedJob

	done := make(chan struct{})
	go func() {
		tick.Run()
		close(done)
	}()

	select {
	case <-running:
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not start")
	}

	// A tick while the first run holds the pipeline returns without running.
	tick.Run()

	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, started)
}

func TestSchedulerRejectsBadExpression(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Schedule.Cron = "every weekday"

	_, err := newScheduler(cfg, func() {}, arbor.NewNoOpLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}
