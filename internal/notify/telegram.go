package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/reflexapp/reflex-backend/internal/logger"
)

// Telegram sends notifications through the Telegram Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

func NewTelegram(botToken string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot}, nil
}

func (t *Telegram) Send(ctx context.Context, telegramID int64, text string) {
	if telegramID == 0 {
		return
	}

	msg := tgbotapi.NewMessage(telegramID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.bot.Send(msg); err != nil {
		logger.Warn("telegram send failed", "telegram_id", telegramID, "err", err)
	}
}
