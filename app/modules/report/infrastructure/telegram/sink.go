// Package telegram delivers rendered reports to a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var ErrInvalidChatID = errors.New("telegram chat id must be numeric or an @channel name")

// Sink sends HTML messages with link previews disabled.
type Sink struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	channel string
	logger  *slog.Logger
}

// NewSink authenticates against the Bot API.
func NewSink(cfg config.TelegramConfig, logger *slog.Logger) (*Sink, error) {
	return NewSinkWithClient(cfg, &http.Client{}, logger)
}

// NewSinkWithClient is NewSink with a caller-supplied HTTP client.
func NewSinkWithClient(cfg config.TelegramConfig, client tgbotapi.HTTPClient, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sink{logger: logger}
	target := strings.TrimSpace(cfg.ChatID)
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		s.chatID = id
	} else if strings.HasPrefix(target, "@") {
		s.channel = target
	} else {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChatID, cfg.ChatID)
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	s.bot = bot

	logger.Info("Telegram sink ready", attr.String("bot", bot.Self.UserName))
	return s, nil
}

// Send delivers one message.
func (s *Sink) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg tgbotapi.MessageConfig
	if s.channel != "" {
		msg = tgbotapi.NewMessageToChannel(s.channel, text)
	} else {
		msg = tgbotapi.NewMessage(s.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	sent, err := s.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	s.logger.DebugContext(ctx, "Telegram message sent", attr.Int("message_id", sent.MessageID))
	return nil
}
