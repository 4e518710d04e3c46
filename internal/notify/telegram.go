// Package notify reports keep-alive failures to Telegram so an
// unattended batch run still reaches a human.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Telegram sends per-visit failure summaries to one chat
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

// NewTelegram creates the notifier
func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
		logger: logger.With("component", "notify"),
	}, nil
}

// VisitFailed sends a failure summary. Send errors are logged and
// swallowed: notification must never mask the visit error.
func (t *Telegram) VisitFailed(ctx context.Context, url string, visitErr error) {
	text := fmt.Sprintf(
		"<b>keep-alive visit failed</b>\nURL: %s\nTime: %s\nError: %s",
		url,
		time.Now().Format(time.DateTime),
		visitErr,
	)

	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		t.logger.Warn("failed to send failure notification", "url", url, "error", err)
	}
}
