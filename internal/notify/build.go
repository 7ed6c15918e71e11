package notify

import (
	"log/slog"

	"github.com/bryan-cox/tempoledger/internal/config"
)

// FromConfig assembles the enabled channels. A Telegram bot that fails to
// authenticate is logged and left out.
func FromConfig(cfg config.NotificationConfig, secrets config.Secrets) Notifier {
	var m Multi
	if cfg.Desktop {
		m = append(m, NewDesktop())
	}
	if cfg.WebhookURL != "" {
		m = append(m, NewWebhook(cfg.WebhookURL))
	}
	if cfg.Telegram.ChatID != 0 {
		if secrets.TelegramBotToken == "" {
			slog.Warn("telegram chat configured without a bot token", "env", config.EnvTelegramToken)
		} else if tg, err := NewTelegram(secrets.TelegramBotToken, cfg.Telegram.ChatID); err != nil {
			slog.Warn("telegram notifications disabled", "error", err)
		} else {
			m = append(m, tg)
		}
	}
	if len(m) == 0 {
		return Nop{}
	}
	return m
}
