package notify

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
)

// telegramBot is the slice of the bot API the dispatcher needs.
type telegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotFactory creates the underlying bot, overridable in tests.
var BotFactory = func(token string) (telegramBot, error) {
	return tgbotapi.NewBotAPI(token)
}

// Telegram delivers alerts to one parent chat.
type Telegram struct {
	bot    telegramBot
	chatID int64
}

func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	bot, err := BotFactory(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, text string) bool {
	if err := ctx.Err(); err != nil {
		return false
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("[notify] telegram send: %v", err)
		return false
	}
	return true
}
