package format

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/shanehull/marketwrap/internal/types"
)

const maxPageBytes = 2 << 20

// PageImageFinder reads the preview image an article page advertises.
type PageImageFinder struct {
	client *http.Client
}

func NewPageImageFinder(client *http.Client) *PageImageFinder {
	return &PageImageFinder{client: client}
}

// Find returns the og:image (or twitter:image) of pageURL.
func (f *PageImageFinder) Find(ctx context.Context, pageURL string) (*types.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; marketwrap/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-OK status code %d from %s", resp.StatusCode, pageURL)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}

	img := extractMetaImage(doc)
	if img == nil {
		return nil, fmt.Errorf("no preview image found on %s", pageURL)
	}
	return img, nil
}

func extractMetaImage(doc *html.Node) *types.Image {
	meta := make(map[string]string)

	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "body" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var key, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "property", "name":
					key = strings.ToLower(strings.TrimSpace(attr.Val))
				case "content":
					content = strings.TrimSpace(attr.Val)
				}
			}
			if key != "" && content != "" {
				if _, seen := meta[key]; !seen {
					meta[key] = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)

	for _, key := range []string{"og:image", "og:image:url", "twitter:image"} {
		if u := meta[key]; strings.HasPrefix(u, "http") {
			desc := meta["og:image:alt"]
			if desc == "" {
				desc = meta["og:title"]
			}
			return &types.Image{URL: u, Description: desc}
		}
	}
	return nil
}
