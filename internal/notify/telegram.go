package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends messages to one chat through a bot.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot token and returns a notifier for chatID.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, chatID, tgbotapi.APIEndpoint)
}

// NewTelegramWithEndpoint is NewTelegram against a custom Bot API endpoint.
func NewTelegramWithEndpoint(token string, chatID int64, endpoint string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Notify sends msg as a plain text message.
func (t *Telegram) Notify(_ context.Context, msg Message) error {
	out := tgbotapi.NewMessage(t.chatID, msg.Text())
	out.DisableWebPagePreview = true
	if _, err := t.bot.Send(out); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}
