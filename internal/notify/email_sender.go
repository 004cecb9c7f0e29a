package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	gomail "gopkg.in/mail.v2"

	"github.com/shanehull/marketwrap/internal/types"
)

const emailChannel = "email"

// EmailConfig holds SMTP configuration for sending emails.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	ToEmail    string
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailPublisher delivers the market wrap via SMTP as HTML with a plain text
// alternative.
type EmailPublisher struct {
	cfg      EmailConfig
	renderer *HTMLEmailRenderer
	dialer   mailDialer
	logger   arbor.ILogger
	now      func() time.Time
}

// NewEmailPublisher creates a sender with the given SMTP configuration.
func NewEmailPublisher(cfg EmailConfig, logger arbor.ILogger) *EmailPublisher {
	dialer := gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	dialer.Timeout = 10 * time.Second

	return &EmailPublisher{
		cfg:      cfg,
		renderer: NewHTMLEmailRenderer(),
		dialer:   dialer,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *EmailPublisher) Publish(ctx context.Context, msg types.FormattedMessage) (types.DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return types.DeliveryResult{}, &types.DeliveryError{Channel: emailChannel, Err: err}
	}

	rendered, err := s.renderer.Render(msg)
	if err != nil {
		return types.DeliveryResult{}, &types.DeliveryError{Channel: emailChannel, Err: err}
	}

	messageID := fmt.Sprintf("<%s@marketwrap>", uuid.NewString())

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.FromEmail)
	m.SetHeader("To", s.cfg.ToEmail)
	m.SetHeader("Subject", rendered.Subject)
	m.SetHeader("Message-ID", messageID)

	m.SetBody("text/plain", rendered.Text)
	m.AddAlternative("text/html", rendered.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error().Err(err).Str("to", s.cfg.ToEmail).Str("subject", rendered.Subject).Msg("Email error: failed to send")
		return types.DeliveryResult{}, &types.DeliveryError{Channel: emailChannel, Err: err}
	}

	s.logger.Info().Str("subject", rendered.Subject).Msg("Email sent")

	return types.DeliveryResult{
		Channel:   emailChannel,
		MessageID: messageID,
		Delivered: true,
		SentAt:    s.now(),
	}, nil
}
