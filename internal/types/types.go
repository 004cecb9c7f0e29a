package types

import (
	"strings"
	"time"
)

const (
	TagMarketWrap         = "US Market Wrap"
	TagMarketWrapFallback = "US Market Wrap - Fallback"
)

// Snippet is a single search result, in provider ranking order.
type Snippet struct {
	Title         string
	Content       string
	URL           string
	PublishedDate string
}

type NewsBundle struct {
	Query     string
	Answer    string
	Snippets  []Snippet
	FetchedAt time.Time
}

// URLs returns the non-empty snippet URLs in order.
func (b NewsBundle) URLs() []string {
	var urls []string
	for _, s := range b.Snippets {
		if s.URL != "" {
			urls = append(urls, s.URL)
		}
	}
	return urls
}

type Summary struct {
	Title    string
	Tag      string
	Body     string
	Date     time.Time
	Model    string
	Sources  []string
	Fallback bool
}

func (s Summary) WordCount() int {
	return CountWords(s.Body)
}

type Image struct {
	URL         string
	Description string
}

type FormattedMessage struct {
	Title     string
	Text      string
	ParseMode string
	Images    []Image
}

type DeliveryResult struct {
	Channel   string
	MessageID string
	Delivered bool
	SentAt    time.Time
}

func CountWords(s string) int {
	return len(strings.Fields(s))
}

// TruncateWords keeps at most max words of s, joined by single spaces within
// each line so paragraph breaks survive.
func TruncateWords(s string, max int) string {
	if CountWords(s) <= max {
		return s
	}

	var sb strings.Builder
	count := 0
	for i, line := range strings.Split(s, "\n") {
		if count >= max {
			break
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		words := strings.Fields(line)
		if count+len(words) > max {
			words = words[:max-count]
		}
		sb.WriteString(strings.Join(words, " "))
		count += len(words)
	}
	return strings.TrimSpace(sb.String())
}
