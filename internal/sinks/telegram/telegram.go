// Package telegram delivers usage notifications to Telegram chats and
// answers a few read-mostly commands from the same chats.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"focusguard/internal/sinks"
)

const SinkName = "telegram"

var ErrNoChats = errors.New("telegram: at least one chat id is required")

// Sender is the part of *tgbotapi.BotAPI used by the sink
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sink implements sinks.Sink over the Telegram Bot API
type Sink struct {
	sender  Sender
	chatIDs []int64
	logger  *slog.Logger
}

// Connect creates the Bot API client for token
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	return api, nil
}

// NewWithSender creates a sink that sends through sender
func NewWithSender(sender Sender, chatIDs []int64, logger *slog.Logger) (*Sink, error) {
	if len(chatIDs) == 0 {
		return nil, ErrNoChats
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		sender:  sender,
		chatIDs: chatIDs,
		logger:  logger.With("sink", SinkName),
	}, nil
}

// Name returns the sink name
func (s *Sink) Name() string {
	return SinkName
}

// Notify sends the message to every configured chat
func (s *Sink) Notify(ctx context.Context, packageID, message string) error {
	text := FormatNudge(packageID, message)

	var errs []error
	for _, chatID := range s.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown

		if _, err := s.sender.Send(msg); err != nil {
			s.logger.Error("Failed to send message",
				"chat_id", chatID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

var _ sinks.Sink = (*Sink)(nil)
