// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/bandwatch/internal/logger"
	"github.com/rewired-gh/bandwatch/internal/models"
)

// StatusProvider exposes the current per-instrument state for the /status command.
type StatusProvider interface {
	Snapshot() []models.InstrumentStatus
}

// sender is the part of tgbotapi.BotAPI the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	sender         sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(bot, chatIDInt, maxRetries, retryDelayBase)
	c.bot = bot
	return c, nil
}

func newClient(s sender, chatID int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		sender:         s,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, status StatusProvider) {
	if c.bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message.Chat.ID, update.Message.Command(), status)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(chatID int64, command string, status StatusProvider) {
	var reply tgbotapi.MessageConfig
	switch command {
	case "ping":
		reply = tgbotapi.NewMessage(chatID, "Pong")
	case "status":
		if status == nil {
			reply = tgbotapi.NewMessage(chatID, "No monitoring run in progress")
			break
		}
		reply = tgbotapi.NewMessage(chatID, formatStatus(status.Snapshot()))
		reply.ParseMode = "MarkdownV2"
	default:
		return
	}
	if _, err := c.sender.Send(reply); err != nil {
		logger.Warn("Failed to reply to /%s: %v", command, err)
	}
}

// Send delivers a plain-text message with linear-backoff retry.
func (c *Client) Send(ctx context.Context, text string) error {
	return c.send(ctx, tgbotapi.NewMessage(c.chatID, text))
}

func (c *Client) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.sender.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("send interrupted: %w", ctx.Err())
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// formatStatus renders the per-instrument state as a MarkdownV2 message.
func formatStatus(items []models.InstrumentStatus) string {
	var b strings.Builder
	b.WriteString("📊 *Monitoring status*\n\n")
	if len(items) == 0 {
		b.WriteString(escapeMarkdownV2("No instruments tracked."))
		return b.String()
	}

	for _, it := range items {
		emoji := "⏳"
		switch it.State {
		case models.Alerted:
			emoji = "✅"
		case models.Skipped:
			emoji = "⚠️"
		}
		line := fmt.Sprintf("%s (%s): %s", it.Instrument.Name, it.Instrument.Symbol, it.State)
		if it.State == models.Alerted {
			line += fmt.Sprintf(", %s side", it.LastSide)
		}
		if it.Band != nil {
			line += fmt.Sprintf(", band %.2f%% ~ %.2f%%", it.Band.Lower()*100, it.Band.Upper()*100)
		}
		fmt.Fprintf(&b, "%s %s\n", emoji, escapeMarkdownV2(line))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
