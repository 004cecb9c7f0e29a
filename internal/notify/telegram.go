package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ternarybob/arbor"

	"github.com/shanehull/marketwrap/internal/types"
)

const (
	telegramChannel    = "telegram"
	telegramMaxLength  = 4096 // UTF-16 code units, as Telegram counts them
	telegramAPITimeout = 30 * time.Second
)

// TelegramConfig holds the bot credentials and destination chat.
type TelegramConfig struct {
	Token  string
	ChatID string // numeric id or @channelusername

	// Endpoint overrides tgbotapi.APIEndpoint, mainly for tests.
	Endpoint string
}

// TelegramPublisher sends messages through the Bot API sendMessage method.
// The bot is created on first use so a bad token surfaces as a delivery
// failure rather than at startup.
type TelegramPublisher struct {
	cfg    TelegramConfig
	client *http.Client
	logger arbor.ILogger
	now    func() time.Time

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegramPublisher(cfg TelegramConfig, client *http.Client, logger arbor.ILogger) *TelegramPublisher {
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: telegramAPITimeout}
	}
	return &TelegramPublisher{
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func (p *TelegramPublisher) Publish(ctx context.Context, msg types.FormattedMessage) (types.DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return types.DeliveryResult{}, deliveryError(err)
	}

	if n := messageLength(msg.Text); n > telegramMaxLength {
		return types.DeliveryResult{}, deliveryError(fmt.Errorf("message too large: %d characters exceeds %d", n, telegramMaxLength))
	}

	bot, err := p.botAPI()
	if err != nil {
		return types.DeliveryResult{}, deliveryError(fmt.Errorf("failed to authorize bot: %w", err))
	}

	config := p.messageConfig(msg)

	p.logger.Info().Str("chat_id", p.cfg.ChatID).Int("length", len(msg.Text)).Msg("Sending message to Telegram")

	sent, err := bot.Send(config)
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return types.DeliveryResult{}, deliveryError(fmt.Errorf("telegram API error %d: %s: %w", apiErr.Code, apiErr.Message, err))
		}
		return types.DeliveryResult{}, deliveryError(err)
	}

	p.logger.Info().Int("message_id", sent.MessageID).Msg("Message sent to Telegram")

	return types.DeliveryResult{
		Channel:   telegramChannel,
		MessageID: strconv.Itoa(sent.MessageID),
		Delivered: true,
		SentAt:    p.now(),
	}, nil
}

// botAPI returns the shared bot, authorizing it on first use. A failed
// authorization is not cached so the next run tries again.
func (p *TelegramPublisher) botAPI() (*tgbotapi.BotAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bot != nil {
		return p.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(p.cfg.Token, p.cfg.Endpoint, p.client)
	if err != nil {
		return nil, err
	}
	p.bot = bot
	return bot, nil
}

// messageLength counts UTF-16 code units, so characters outside the BMP
// such as emoji count twice.
func messageLength(text string) int {
	return len(utf16.Encode([]rune(text)))
}

func (p *TelegramPublisher) messageConfig(msg types.FormattedMessage) tgbotapi.MessageConfig {
	var config tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(p.cfg.ChatID, 10, 64); err == nil {
		config = tgbotapi.NewMessage(id, msg.Text)
	} else {
		config = tgbotapi.NewMessageToChannel(p.cfg.ChatID, msg.Text)
	}
	config.ParseMode = msg.ParseMode
	return config
}

func deliveryError(err error) error {
	return &types.DeliveryError{Channel: telegramChannel, Err: err}
}
