/*
Package notify delivers the formatted market wrap to its destination channel.
*/
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shanehull/marketwrap/internal/types"
)

// Publisher sends a formatted message. Failures are returned as
// *types.DeliveryError.
type Publisher interface {
	Publish(ctx context.Context, msg types.FormattedMessage) (types.DeliveryResult, error)
}

// ConsolePublisher prints the message instead of sending it. Used for dry runs.
type ConsolePublisher struct {
	out io.Writer
	now func() time.Time
}

func NewConsolePublisher(out io.Writer) *ConsolePublisher {
	return &ConsolePublisher{out: out, now: time.Now}
}

func (p *ConsolePublisher) Publish(ctx context.Context, msg types.FormattedMessage) (types.DeliveryResult, error) {
	var sb strings.Builder
	sb.WriteString("\n===========================================\n")
	sb.WriteString(fmt.Sprintf("✅ %s (dry run, %d images)\n", msg.Title, len(msg.Images)))
	sb.WriteString("===========================================\n")
	sb.WriteString(msg.Text)
	sb.WriteString("===========================================\n")

	if _, err := io.WriteString(p.out, sb.String()); err != nil {
		return types.DeliveryResult{}, &types.DeliveryError{Channel: "console", Err: err}
	}

	return types.DeliveryResult{
		Channel:   "console",
		Delivered: true,
		SentAt:    p.now(),
	}, nil
}
