package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/shanehull/marketwrap/internal/types"
)

// RenderedMessage is an email ready to send.
type RenderedMessage struct {
	Subject string
	Text    string
	HTML    string
}

type emailTemplateData struct {
	Title  string
	Body   template.HTML
	Images []types.Image
}

// HTMLEmailRenderer renders the Markdown message as an HTML email with a
// plain text fallback.
type HTMLEmailRenderer struct {
	tmpl     *template.Template
	markdown goldmark.Markdown
}

// NewHTMLEmailRenderer creates a renderer with the default email template.
func NewHTMLEmailRenderer() *HTMLEmailRenderer {
	t := template.Must(template.New("email").Parse(emailHTMLTemplate))
	md := goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps()))
	return &HTMLEmailRenderer{tmpl: t, markdown: md}
}

func (r *HTMLEmailRenderer) Render(msg types.FormattedMessage) (*RenderedMessage, error) {
	var bodyBuf bytes.Buffer
	if err := r.markdown.Convert([]byte(msg.Text), &bodyBuf); err != nil {
		return nil, fmt.Errorf("failed to convert markdown: %w", err)
	}

	data := emailTemplateData{
		Title:  msg.Title,
		Body:   template.HTML(bodyBuf.String()),
		Images: msg.Images,
	}

	var htmlBuf bytes.Buffer
	if err := r.tmpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &RenderedMessage{
		Subject: msg.Title,
		Text:    msg.Text,
		HTML:    htmlBuf.String(),
	}, nil
}
