package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"focusguard/internal/core"
)

const maxBreakMinutes = 24 * 60

// UsageReader is the part of the usage ledger the commands read
type UsageReader interface {
	UsageForDay(ctx context.Context, day time.Time) ([]*core.UsageRecord, error)
}

// BreakStarter is the part of the break controller the commands use.
// Stopping a break is left to the API, where strict mode applies.
type BreakStarter interface {
	StartBreak(ctx context.Context, durationMinutes int, whitelist []string) (*core.BreakState, error)
	Snapshot() core.BreakState
}

// Commands answers bot commands from the configured chats
type Commands struct {
	sender Sender
	chats  map[int64]bool
	usage  UsageReader
	breaks BreakStarter
	clock  core.Clock
	logger *slog.Logger
}

// NewCommands creates a command handler. Only chatIDs may use it.
func NewCommands(sender Sender, chatIDs []int64, usage UsageReader, breaks BreakStarter, clock core.Clock, logger *slog.Logger) *Commands {
	if clock == nil {
		clock = core.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	chats := make(map[int64]bool, len(chatIDs))
	for _, id := range chatIDs {
		chats[id] = true
	}
	return &Commands{
		sender: sender,
		chats:  chats,
		usage:  usage,
		breaks: breaks,
		clock:  clock,
		logger: logger.With("component", "telegram-commands"),
	}
}

// Run handles updates until ctx is done or updates is closed
func (c *Commands) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := c.HandleUpdate(ctx, update); err != nil {
				c.logger.Error("Failed to handle update", "update_id", update.UpdateID, "error", err)
			}
		}
	}
}

// HandleUpdate processes a Telegram update
func (c *Commands) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	message := update.Message
	if message == nil || message.Chat == nil {
		// Ignore updates without a message
		return nil
	}

	if !c.chats[message.Chat.ID] {
		c.logger.Warn("Unauthorized access attempt", "chat_id", message.Chat.ID)
		return c.send(message.Chat.ID, "⛔ You are not authorized to use this bot.")
	}

	if !message.IsCommand() {
		return nil
	}

	c.logger.Info("Received command",
		"chat_id", message.Chat.ID,
		"command", message.Command(),
	)

	switch message.Command() {
	case "start", "help":
		return c.send(message.Chat.ID, helpText)
	case "today":
		return c.handleToday(ctx, message)
	case "break":
		return c.handleBreak(ctx, message)
	default:
		return c.send(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

const helpText = `👋 *focusguard*

*Available Commands:*

📊 /today - Today's screen time per app
☕ /break - Show the running break
☕ /break 30 - Start a 30 minute break`

func (c *Commands) handleToday(ctx context.Context, message *tgbotapi.Message) error {
	records, err := c.usage.UsageForDay(ctx, c.clock.Now())
	if err != nil {
		c.logger.Error("Failed to read usage", "error", err)
		return c.send(message.Chat.ID, FormatError(err))
	}
	return c.send(message.Chat.ID, FormatToday(records))
}

func (c *Commands) handleBreak(ctx context.Context, message *tgbotapi.Message) error {
	arg := strings.TrimSpace(message.CommandArguments())
	if arg == "" {
		return c.send(message.Chat.ID, FormatBreak(c.breaks.Snapshot(), c.clock.Now()))
	}

	minutes, err := strconv.Atoi(arg)
	if err != nil || minutes <= 0 || minutes > maxBreakMinutes {
		return c.send(message.Chat.ID, fmt.Sprintf("❌ Usage: /break <minutes>, 1 to %d", maxBreakMinutes))
	}

	state, err := c.breaks.StartBreak(ctx, minutes, nil)
	if err != nil {
		c.logger.Error("Failed to start break", "duration_minutes", minutes, "error", err)
		return c.send(message.Chat.ID, FormatError(err))
	}
	return c.send(message.Chat.ID, FormatBreak(*state, c.clock.Now()))
}

// send sends a Markdown text message
func (c *Commands) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := c.sender.Send(msg); err != nil {
		c.logger.Error("Failed to send message",
			"chat_id", chatID,
			"error", err,
		)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
