/*
Package format renders a market wrap summary into a send-ready Markdown
message, enriched with chart images where they can be found.
*/
package format

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/shanehull/marketwrap/internal/types"
)

const (
	ParseModeMarkdown = "Markdown"
	maxImages         = 2
	topicWords        = 12
)

var chartKeywords = []string{"chart", "graph", "market", "stock", "trading", "financial"}

type ImageSearcher interface {
	ImageSearch(ctx context.Context, topic string) ([]types.Image, error)
}

type PageImageSource interface {
	Find(ctx context.Context, pageURL string) (*types.Image, error)
}

// Formatter never fails: image lookup problems are logged and the message is
// sent without images.
type Formatter struct {
	images   ImageSearcher
	pages    PageImageSource
	logger   arbor.ILogger
	location *time.Location
	timeout  time.Duration
	now      func() time.Time
}

func NewFormatter(images ImageSearcher, pages PageImageSource, location *time.Location, timeout time.Duration, logger arbor.ILogger) *Formatter {
	if location == nil {
		location = time.UTC
	}
	return &Formatter{
		images:   images,
		pages:    pages,
		logger:   logger,
		location: location,
		timeout:  timeout,
		now:      time.Now,
	}
}

func (f *Formatter) Format(ctx context.Context, summary types.Summary) types.FormattedMessage {
	images := f.findImages(ctx, summary)
	f.logger.Info().Int("images", len(images)).Str("title", summary.Title).Msg("Formatted message")

	return types.FormattedMessage{
		Title:     summary.Title,
		Text:      f.render(summary, images),
		ParseMode: ParseModeMarkdown,
		Images:    images,
	}
}

func (f *Formatter) findImages(ctx context.Context, summary types.Summary) (images []types.Image) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn().Str("panic", fmt.Sprint(r)).Msg("Image lookup panicked, sending without images")
			images = nil
		}
	}()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if f.images != nil {
		found, err := f.images.ImageSearch(ctx, topicOf(summary))
		if err != nil {
			f.logger.Warn().Err(err).Msg("Chart search failed")
		} else {
			images = filterCharts(found)
		}
	}

	if len(images) == 0 && f.pages != nil && len(summary.Sources) > 0 {
		img, err := f.pages.Find(ctx, summary.Sources[0])
		if err != nil {
			f.logger.Debug().Err(err).Str("url", summary.Sources[0]).Msg("No preview image on top source")
		} else {
			images = append(images, *img)
		}
	}

	return images
}

// filterCharts keeps up to maxImages images whose description looks like a
// market visual.
func filterCharts(images []types.Image) []types.Image {
	var out []types.Image
	for _, img := range images {
		if len(out) == maxImages {
			break
		}
		desc := strings.ToLower(img.Description)
		for _, kw := range chartKeywords {
			if strings.Contains(desc, kw) {
				out = append(out, img)
				break
			}
		}
	}
	return out
}

func topicOf(summary types.Summary) string {
	words := strings.Fields(strings.NewReplacer("*", "", "_", "", "-", " ").Replace(summary.Body))
	if len(words) > topicWords {
		words = words[:topicWords]
	}
	return strings.Join(words, " ")
}

func (f *Formatter) render(summary types.Summary, images []types.Image) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("📊 *%s* 📊\n\n", cleanLinkText(summary.Title)))
	sb.WriteString(telegramMarkdown(summary.Body))
	sb.WriteString("\n")

	if len(images) > 0 {
		sb.WriteString("\n📈 *Charts*\n")
		for i, img := range images {
			desc := cleanLinkText(img.Description)
			if desc == "" {
				desc = fmt.Sprintf("Chart %d", i+1)
			}
			sb.WriteString(fmt.Sprintf("[%s](%s)\n", desc, img.URL))
		}
	}

	if len(summary.Sources) > 0 {
		sb.WriteString("\n🔗 *Sources*: ")
		links := make([]string, 0, len(summary.Sources))
		for i, u := range summary.Sources {
			links = append(links, fmt.Sprintf("[%d](%s)", i+1, u))
		}
		sb.WriteString(strings.Join(links, " "))
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n🕐 Generated: %s\n", f.now().In(f.location).Format("2006-01-02 15:04:05 MST")))
	return sb.String()
}

var (
	doubleStar = regexp.MustCompile(`\*\*(.+?)\*\*`)
	heading    = regexp.MustCompile(`(?m)^#{1,6}\s*(.+)$`)
	starBullet = regexp.MustCompile(`(?m)^(\s*)\*\s+`)
)

// telegramMarkdown converts common Markdown to Telegram's legacy dialect and
// drops unbalanced entity markers that would make the API reject the message.
func telegramMarkdown(body string) string {
	body = starBullet.ReplaceAllString(body, "${1}- ")
	body = doubleStar.ReplaceAllString(body, "*$1*")
	body = heading.ReplaceAllString(body, "*$1*")
	for _, marker := range []string{"*", "_", "`"} {
		if strings.Count(body, marker)%2 != 0 {
			body = strings.ReplaceAll(body, marker, "")
		}
	}
	return strings.TrimSpace(body)
}

func cleanLinkText(s string) string {
	return strings.TrimSpace(strings.NewReplacer("*", "", "_", " ", "[", "(", "]", ")", "`", "").Replace(s))
}
