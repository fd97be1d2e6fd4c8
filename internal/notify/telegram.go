// Package notify sends run summaries to a Telegram chat.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"social-checker/internal/manager"
)

// Sender is the part of *tgbotapi.BotAPI used here
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts a summary when a run finishes
type Telegram struct {
	manager.NopReporter

	sender Sender
	chatID int64
	logger *zap.Logger
}

// NewTelegram connects to the bot API with token
func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return NewTelegramWithSender(api, chatID, logger), nil
}

// NewTelegramWithSender uses an existing sender
func NewTelegramWithSender(sender Sender, chatID int64, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{sender: sender, chatID: chatID, logger: logger}
}

// RunFinished sends the run summary
func (t *Telegram) RunFinished(status manager.Status) {
	msg := tgbotapi.NewMessage(t.chatID, Summary(status))
	if _, err := t.sender.Send(msg); err != nil {
		t.logger.Warn("telegram notification failed", zap.Error(err))
	}
}

// Summary formats a finished run for humans
func Summary(s manager.Status) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "📊 %s run %s\n", s.Platform, s.State)
	fmt.Fprintf(&sb, "💰 Checked: %s / %s\n", humanize.Comma(s.Counters.Total), humanize.Comma(int64(s.Total)))
	fmt.Fprintf(&sb, "✅ Live: %s\n", humanize.Comma(s.Counters.Live))
	fmt.Fprintf(&sb, "🔒 Suspended: %s\n", humanize.Comma(s.Counters.Suspended))
	fmt.Fprintf(&sb, "❔ Unknown: %s\n", humanize.Comma(s.Counters.Unknown))
	fmt.Fprintf(&sb, "❌ Error: %s\n", humanize.Comma(s.Counters.Error))
	if s.EndedAt != nil {
		fmt.Fprintf(&sb, "⏱ %s at %.1f CPM\n", s.EndedAt.Sub(s.StartedAt).Round(time.Second), s.CPM)
	}
	if s.Error != "" {
		fmt.Fprintf(&sb, "⚠️ %s\n", s.Error)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
